package angelone

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vanna/internal/adapters/config"
	"vanna/internal/domain/chain"
	"vanna/internal/metrics"
	"vanna/pkg/errors"
	"vanna/pkg/logger"
	"vanna/pkg/reconnect"
)

const (
	feedWriteTimeout = 5 * time.Second
	actionSubscribe  = 1
	modeFull         = 3
	exchangeTypeNFO  = 2
)

// Feed is the broker push-feed link. It keeps one WebSocket to the vendor
// stream, decodes ticks and delivers them to the tick store through a bounded
// buffer, so a slow store write never backs up the socket read loop.
type Feed struct {
	cfg   config.FeedConfig
	store chain.TickStore
	recon *reconnect.Manager

	mu        sync.RWMutex
	conn      *websocket.Conn
	tokens    []string
	connected bool

	ticks  chan chain.Tick
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewFeed creates the push-feed link writing into the given store
func NewFeed(cfg config.FeedConfig, store chain.TickStore) *Feed {
	log := logger.Get().With("component", "feed")
	return &Feed{
		cfg:   cfg,
		store: store,
		ticks: make(chan chain.Tick, cfg.BufferSize),
		recon: reconnect.NewManager(reconnect.Config{
			MinBackoff: cfg.MinBackoff,
			MaxBackoff: cfg.MaxBackoff,
			MaxRetries: cfg.MaxReconnect,
		}, log),
		log: log,
	}
}

// SetTokens replaces the subscribed token set. When the link is up the new
// set is pushed to the vendor immediately; otherwise it applies on the next
// (re)connect. Called at boot and after every catalog reload.
func (f *Feed) SetTokens(tokens []string) error {
	f.mu.Lock()
	f.tokens = tokens
	conn := f.conn
	connected := f.connected
	f.mu.Unlock()

	if !connected || conn == nil {
		return nil
	}
	return f.subscribe(conn, tokens)
}

// Start runs the feed link until the context is cancelled. It returns
// immediately; dialing, reading and store writes happen on background
// goroutines.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.storeWriter(ctx)

	f.wg.Add(1)
	go f.connectLoop(ctx)
}

// Stop tears the link down and waits for the goroutines to drain
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConn()
	f.wg.Wait()
}

// Healthy reports whether the link has seen traffic recently
func (f *Feed) Healthy() bool {
	f.mu.RLock()
	connected := f.connected
	f.mu.RUnlock()
	return connected && f.recon.IsHealthy()
}

// connectLoop dials, subscribes and reads until the socket dies, then backs
// off per the reconnect manager and tries again.
func (f *Feed) connectLoop(ctx context.Context) {
	defer f.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if !f.recon.ShouldRetry() {
			f.log.Error("Feed link gave up: ", errors.ErrWSMaxReconnectAttempts)
			return
		}

		if err := f.connectOnce(ctx); err != nil {
			f.recon.RecordFailure()
			metrics.FeedReconnects.Inc()

			select {
			case <-ctx.Done():
				return
			case <-time.After(f.recon.GetBackoff()):
			}
			continue
		}

		// Connection established and then lost; back off before redialing.
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.recon.GetBackoff()):
		}
	}
}

// connectOnce dials and reads until the connection breaks
func (f *Feed) connectOnce(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := map[string][]string{
		"Authorization": {"Bearer " + f.cfg.AuthToken},
		"x-api-key":     {f.cfg.FeedToken},
		"x-client-code": {f.cfg.ClientCode},
		"x-feed-token":  {f.cfg.FeedToken},
	}

	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return errors.Wrap(err, "dial feed")
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	tokens := f.tokens
	f.mu.Unlock()

	f.recon.RecordSuccess()
	f.log.Infow("Feed connected", "url", f.cfg.URL, "tokens", len(tokens))

	if len(tokens) > 0 {
		if err := f.subscribe(conn, tokens); err != nil {
			f.teardown(conn)
			return err
		}
	}

	err = f.readLoop(ctx, conn)
	f.teardown(conn)
	return err
}

// subscribe sends the FULL-mode subscription frame for the token set
func (f *Feed) subscribe(conn *websocket.Conn, tokens []string) error {
	frame := subscribeRequest{
		CorrelationID: uuid.NewString(),
		Action:        actionSubscribe,
		Params: subscribeParams{
			Mode: modeFull,
			TokenList: []tokenList{
				{ExchangeType: exchangeTypeNFO, Tokens: tokens},
			},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return errors.Wrap(errors.ErrWSSubscriptionFailed, err.Error())
	}
	return nil
}

// readLoop decodes ticks and pushes them into the bounded buffer. A full
// buffer drops the tick: the store holds last-value-wins data, so a newer
// tick for the token follows shortly.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "feed read")
		}
		f.recon.RecordMessageReceived()

		var msg feedMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Token == "" {
			continue // heartbeat or control frame
		}

		metrics.FeedTicks.Inc()

		tick := chain.Tick{
			Token:     msg.Token,
			LTP:       msg.LTP,
			OI:        msg.OpenInterest,
			Volume:    msg.TotalTradedVolume,
			IV:        msg.ImpliedVolatility,
			Gamma:     msg.Gamma,
			Timestamp: time.Now(),
		}

		select {
		case f.ticks <- tick:
		default:
			f.log.Debugw("Tick buffer full, dropping", "token", msg.Token)
		}
	}
}

// storeWriter drains the tick buffer into the store
func (f *Feed) storeWriter(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-f.ticks:
			if err := f.store.Put(ctx, tick); err != nil {
				f.log.Warnw("Tick store write failed", "token", tick.Token, "error", err)
			}
		}
	}
}

func (f *Feed) teardown(conn *websocket.Conn) {
	f.mu.Lock()
	if f.conn == conn {
		f.conn = nil
		f.connected = false
	}
	f.mu.Unlock()
	conn.Close()
}

func (f *Feed) closeConn() {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.connected = false
	f.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
