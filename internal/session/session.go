package session

import (
	"context"
	"sync"
	"time"

	"vanna/pkg/errors"
)

// Session is an issued broker session. The core treats every token opaquely;
// the feed token is what point-queries and the push feed are keyed on.
type Session struct {
	ClientCode   string    `json:"client_code"`
	FeedToken    string    `json:"feed_token"`
	AuthToken    string    `json:"auth_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	LoginTime    time.Time `json:"login_time"`
}

// Store caches issued sessions per client code
type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, clientCode string) (Session, error)
}

// MemoryStore is the in-process session store used when Redis is down and in
// tests. Entries expire after the TTL.
type MemoryStore struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Save(ctx context.Context, sess Session) error {
	s.mu.Lock()
	s.sessions[sess.ClientCode] = memoryEntry{
		session:   sess,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, clientCode string) (Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[clientCode]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return Session{}, errors.Wrapf(errors.ErrSessionNotFound, "client %s", clientCode)
	}
	return entry.session, nil
}
