package redis

import (
	"context"
	"time"

	"vanna/internal/domain/chain"
	"vanna/pkg/errors"
)

// TickStore is the Redis-backed implementation of chain.TickStore. Ticks live
// under tick:{token} with the configured TTL so the broker feed's SET both
// overwrites the prior value and resets expiry in one step.
type TickStore struct {
	client *Client
	ttl    time.Duration
}

// NewTickStore creates a Redis tick store with the given TTL
func NewTickStore(client *Client, ttl time.Duration) *TickStore {
	return &TickStore{
		client: client,
		ttl:    ttl,
	}
}

func tickKey(token string) string {
	return "tick:" + token
}

// Put stores the tick with TTL, overwriting any prior value
func (s *TickStore) Put(ctx context.Context, tick chain.Tick) error {
	if err := s.client.Set(ctx, tickKey(tick.Token), tick, s.ttl); err != nil {
		return errors.Wrapf(err, "put tick %s", tick.Token)
	}
	return nil
}

// Get returns the latest tick for the token. Missing and expired keys both
// report ok=false; Redis handles expiry server-side.
func (s *TickStore) Get(ctx context.Context, token string) (chain.Tick, bool, error) {
	var tick chain.Tick
	err := s.client.Get(ctx, tickKey(token), &tick)
	if err != nil {
		if IsNil(err) {
			return chain.Tick{}, false, nil
		}
		return chain.Tick{}, false, errors.Wrapf(err, "get tick %s", token)
	}
	return tick, true, nil
}

// Healthy pings the Redis backend
func (s *TickStore) Healthy(ctx context.Context) error {
	return s.client.Health(ctx)
}
