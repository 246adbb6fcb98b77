// memory.go -- In-process session store for single-instance deployments.
//
// Used when REDIS_URL is unset. Sessions vanish on restart.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps sessions in a bounded, expiring LRU.
// The LRU's TTL is an upper bound; each entry also carries its own ExpiresAt.
type MemoryStore struct {
	data *expirable.LRU[string, Session]
}

// NewMemoryStore returns a MemoryStore holding at most capacity sessions,
// none living longer than maxTTL.
func NewMemoryStore(capacity int, maxTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		data: expirable.NewLRU[string, Session](capacity, nil, maxTTL),
	}
}

// CheckHealth always succeeds.
func (s *MemoryStore) CheckHealth(_ context.Context) error { return nil }

// SetSession stores a session under key with given TTL (in seconds).
func (s *MemoryStore) SetSession(_ context.Context, key string, sess Session, ttl int) error {
	if ttl <= 0 {
		return fmt.Errorf("storing session: non-positive ttl %d", ttl)
	}
	// Clamp ExpiresAt to the requested TTL so Get honours it.
	if deadline := time.Now().Add(time.Duration(ttl) * time.Second); sess.ExpiresAt.IsZero() || sess.ExpiresAt.After(deadline) {
		sess.ExpiresAt = deadline
	}
	s.data.Add(key, sess)
	return nil
}

// GetSession retrieves a session by key. Returns ErrCacheMiss for missing or expired sessions.
func (s *MemoryStore) GetSession(_ context.Context, key string) (*Session, error) {
	sess, ok := s.data.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if sess.Expired(time.Now()) {
		s.data.Remove(key)
		return nil, ErrCacheMiss
	}
	return &sess, nil
}

// DeleteSession removes a session by key.
func (s *MemoryStore) DeleteSession(_ context.Context, key string) error {
	s.data.Remove(key)
	return nil
}

// Len returns the number of stored (possibly expired, not yet evicted) sessions.
func (s *MemoryStore) Len() int {
	return s.data.Len()
}
