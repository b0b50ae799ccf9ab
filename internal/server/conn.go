package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vanna/internal/metrics"
	"vanna/pkg/errors"
)

// ConnState is the lifecycle of one client subscription
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateActive
	StateClosing
	StateClosed // terminal
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

const (
	writeTimeout  = 5 * time.Second
	sendQueueSize = 32
)

// wsConn is the slice of *websocket.Conn the subscription writes through.
// Narrowed to an interface so failure paths are testable without a socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscription is one live client connection wanting snapshots for one
// underlying. A client identity may own several of these concurrently.
type Subscription struct {
	ID         uuid.UUID
	ClientID   string
	Underlying string

	conn  wsConn
	send  chan []byte
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	hub   *Hub
}

func newSubscription(hub *Hub, clientID, underlying string, conn wsConn) *Subscription {
	s := &Subscription{
		ID:         uuid.New(),
		ClientID:   clientID,
		Underlying: underlying,
		conn:       conn,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
		hub:        hub,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current lifecycle state
func (s *Subscription) State() ConnState {
	return ConnState(s.state.Load())
}

// enqueue hands a payload to the write pump. A non-ACTIVE subscription
// rejects it; a full queue means the client stopped draining, which tears the
// connection down rather than stalling the sender.
func (s *Subscription) enqueue(payload []byte) error {
	if s.State() != StateActive {
		return errors.Wrapf(errors.ErrSubscriptionClosed, "subscription %s", s.ID)
	}

	select {
	case s.send <- payload:
		return nil
	default:
		s.hub.log.Warnw("Send queue full, closing lagging subscriber",
			"subscription", s.ID,
			"client", s.ClientID,
		)
		s.close()
		return errors.Wrapf(errors.ErrSubscriptionClosed, "subscription %s lagging", s.ID)
	}
}

// writePump is the only goroutine writing to the socket. It drains the
// in-flight payload before honoring teardown, then finalizes the CLOSED
// transition.
func (s *Subscription) writePump() {
	defer s.finalize()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				metrics.SendFailures.WithLabelValues(s.Underlying).Inc()
				s.hub.log.Debugw("Send failed, closing subscription",
					"subscription", s.ID,
					"client", s.ClientID,
					"error", err,
				)
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close starts teardown: ACTIVE/CONNECTING → CLOSING. Safe to call from any
// goroutine, any number of times.
func (s *Subscription) close() {
	s.once.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.done)
	})
}

// finalize completes CLOSING → CLOSED and removes the subscription from the
// registry.
func (s *Subscription) finalize() {
	s.close()
	s.conn.Close()
	s.state.Store(int32(StateClosed))
	s.hub.remove(s)
}
