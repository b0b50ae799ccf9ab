package chain

import (
	"context"
	"sync"
	"time"
)

// TickStore holds the most recent tick per instrument token. The ingestion
// link is the sole writer; chain assembly reads. Entries expire after the
// configured TTL and an expired entry is reported as absent, never as
// stale-but-valid.
type TickStore interface {
	// Put overwrites any prior tick for the token and resets its expiry.
	Put(ctx context.Context, tick Tick) error

	// Get returns the tick for the token, or ok=false when the token was
	// never written or its entry expired.
	Get(ctx context.Context, token string) (Tick, bool, error)

	// Healthy reports whether the backing store is reachable.
	Healthy(ctx context.Context) error
}

// MemoryTickStore is a concurrent in-process TickStore with lazy TTL
// enforcement. It backs the service when Redis is unreachable at startup and
// is the store of choice in tests.
type MemoryTickStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	tick      Tick
	expiresAt time.Time
}

// NewMemoryTickStore creates an in-memory store with the given tick TTL.
func NewMemoryTickStore(ttl time.Duration) *MemoryTickStore {
	return &MemoryTickStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Put stores the tick under its token and resets the expiry timer.
func (s *MemoryTickStore) Put(ctx context.Context, tick Tick) error {
	s.mu.Lock()
	s.entries[tick.Token] = memoryEntry{
		tick:      tick,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return nil
}

// Get returns the latest tick for the token. Expired entries are dropped on
// read so a stale tick is never surfaced.
func (s *MemoryTickStore) Get(ctx context.Context, token string) (Tick, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[token]
	s.mu.RUnlock()

	if !ok {
		return Tick{}, false, nil
	}

	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have refreshed it.
		if cur, still := s.entries[token]; still && s.now().After(cur.expiresAt) {
			delete(s.entries, token)
		}
		s.mu.Unlock()
		return Tick{}, false, nil
	}

	return entry.tick, true, nil
}

// Healthy always succeeds for the in-memory store.
func (s *MemoryTickStore) Healthy(ctx context.Context) error {
	return nil
}

// Len returns the number of live entries, counting out expired ones.
func (s *MemoryTickStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	now := s.now()
	for _, e := range s.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
