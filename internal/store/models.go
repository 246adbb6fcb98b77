// models.go -- Shared domain types for the store package.
// Used by both the Redis store and the in-memory store.
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrCacheMiss is returned by GetSession when the key is not stored or has expired.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// Session is one signed-in browser session.
// Tokens are held server-side only; the browser gets an opaque session cookie.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Subject     string    `json:"sub"`
	IDToken     string    `json:"id_token"`
	AccessToken string    `json:"access_token"`
	CSRFToken   []byte    `json:"csrf_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
