package redis

import (
	"context"
	"time"

	"vanna/internal/session"
	"vanna/pkg/errors"
)

// SessionStore is the Redis-backed session cache. Sessions live under
// session:{client_code} with the configured TTL (brokers invalidate their
// tokens daily).
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

// NewSessionStore creates a Redis session store
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(clientCode string) string {
	return "session:" + clientCode
}

// Save caches the session under its client code
func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	if err := s.client.Set(ctx, sessionKey(sess.ClientCode), sess, s.ttl); err != nil {
		return errors.Wrapf(err, "save session %s", sess.ClientCode)
	}
	return nil
}

// Get returns the cached session for the client code
func (s *SessionStore) Get(ctx context.Context, clientCode string) (session.Session, error) {
	var sess session.Session
	err := s.client.Get(ctx, sessionKey(clientCode), &sess)
	if err != nil {
		if IsNil(err) {
			return session.Session{}, errors.Wrapf(errors.ErrSessionNotFound, "client %s", clientCode)
		}
		return session.Session{}, errors.Wrapf(err, "get session %s", clientCode)
	}
	return sess, nil
}
