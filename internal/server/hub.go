package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"vanna/internal/metrics"
	"vanna/pkg/errors"
	"vanna/pkg/logger"
)

// Hub owns every live client subscription. It admits connections, fans
// payloads out per underlying or per client identity, and guarantees a
// destroyed handle is never pushed to. Failures on one handle never touch
// sibling handles of the same client.
type Hub struct {
	mu           sync.RWMutex
	subs         map[uuid.UUID]*Subscription
	byClient     map[string]map[uuid.UUID]*Subscription
	byUnderlying map[string]map[uuid.UUID]*Subscription

	// onLastUnsubscribe fires after the last subscription for an underlying
	// is removed, so the snapshot loop for it can stop.
	onLastUnsubscribe func(underlying string)

	log *logger.Logger
}

// NewHub creates an empty subscription registry
func NewHub() *Hub {
	return &Hub{
		subs:         make(map[uuid.UUID]*Subscription),
		byClient:     make(map[string]map[uuid.UUID]*Subscription),
		byUnderlying: make(map[string]map[uuid.UUID]*Subscription),
		log:          logger.Get().With("component", "hub"),
	}
}

// SetOnLastUnsubscribe installs the zero-audience hook. Must be called
// before the hub starts admitting subscriptions.
func (h *Hub) SetOnLastUnsubscribe(fn func(underlying string)) {
	h.onLastUnsubscribe = fn
}

// Subscribe admits a connection, sends the connected acknowledgment and
// activates the subscription.
func (h *Hub) Subscribe(clientID, underlying string, conn wsConn) *Subscription {
	sub := newSubscription(h, clientID, underlying, conn)

	h.mu.Lock()
	h.subs[sub.ID] = sub
	if h.byClient[clientID] == nil {
		h.byClient[clientID] = make(map[uuid.UUID]*Subscription)
	}
	h.byClient[clientID][sub.ID] = sub
	if h.byUnderlying[underlying] == nil {
		h.byUnderlying[underlying] = make(map[uuid.UUID]*Subscription)
	}
	h.byUnderlying[underlying][sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	metrics.ActiveSubscriptions.WithLabelValues(underlying).Inc()

	go sub.writePump()

	ack, _ := json.Marshal(map[string]string{
		"type":    "connected",
		"message": fmt.Sprintf("Connected to %s live option chain", underlying),
	})
	sub.send <- ack
	sub.state.Store(int32(StateActive))

	h.log.Infow("Client connected",
		"client", clientID,
		"underlying", underlying,
		"subscription", sub.ID,
		"total_connections", total,
	)
	return sub
}

// Unsubscribe tears one subscription down. Idempotent: unknown or already
// closed IDs are a no-op.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.RLock()
	sub, ok := h.subs[id]
	h.mu.RUnlock()

	if !ok {
		return
	}
	sub.close()
}

// Broadcast pushes a payload to every active subscription for the
// underlying. Each handle fails independently.
func (h *Hub) Broadcast(underlying string, payload []byte) {
	for _, sub := range h.snapshotSubs(underlying) {
		_ = sub.enqueue(payload)
	}
}

// PushToClient sends a payload to every active handle owned by the client
// identity. A failure on one handle marks only that handle for teardown.
func (h *Hub) PushToClient(clientID string, payload []byte) error {
	h.mu.RLock()
	conns := make([]*Subscription, 0, len(h.byClient[clientID]))
	for _, sub := range h.byClient[clientID] {
		conns = append(conns, sub)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return errors.Wrapf(errors.ErrNotFound, "client %s has no connections", clientID)
	}

	for _, sub := range conns {
		_ = sub.enqueue(payload)
	}
	return nil
}

// SubscriberCount returns the number of registered subscriptions for the
// underlying.
func (h *Hub) SubscriberCount(underlying string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUnderlying[underlying])
}

// ActiveSubscriptions returns the total number of registered subscriptions
func (h *Hub) ActiveSubscriptions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ClientCount returns the number of distinct connected client identities
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byClient)
}

// snapshotSubs copies the subscription set for an underlying so sends happen
// outside the registry lock.
func (h *Hub) snapshotSubs(underlying string) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Subscription, 0, len(h.byUnderlying[underlying]))
	for _, sub := range h.byUnderlying[underlying] {
		out = append(out, sub)
	}
	return out
}

// remove deletes a finalized subscription from the registry, dropping the
// client identity entry when this was its last handle and firing the
// zero-audience hook when its underlying has no subscribers left.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.ID)

	if conns, ok := h.byClient[sub.ClientID]; ok {
		delete(conns, sub.ID)
		if len(conns) == 0 {
			delete(h.byClient, sub.ClientID)
		}
	}

	lastForUnderlying := false
	if conns, ok := h.byUnderlying[sub.Underlying]; ok {
		delete(conns, sub.ID)
		if len(conns) == 0 {
			delete(h.byUnderlying, sub.Underlying)
			lastForUnderlying = true
		}
	}
	total := len(h.subs)
	h.mu.Unlock()

	metrics.WSConnections.Dec()
	metrics.ActiveSubscriptions.WithLabelValues(sub.Underlying).Dec()

	h.log.Infow("Client disconnected",
		"client", sub.ClientID,
		"underlying", sub.Underlying,
		"subscription", sub.ID,
		"total_connections", total,
	)

	if lastForUnderlying && h.onLastUnsubscribe != nil {
		h.onLastUnsubscribe(sub.Underlying)
	}
}
