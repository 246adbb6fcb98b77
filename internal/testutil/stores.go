// stores.go
//
// Shared mock implementations of auth.SessionStore and oauth.Provider.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"net/url"
	"sync"

	"github.com/MGallo-Code/gatekeep/internal/oauth"
	"github.com/MGallo-Code/gatekeep/internal/store"
)

// MockStore implements auth.SessionStore for tests.
// Always stateful...Sessions is a map, like a real store.
// Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	SetSessionErr    error
	GetSessionErr    error
	DeleteSessionErr error
	HealthErr        error

	Sessions map[string]*store.Session // keyed by base64 token hash

	mu sync.Mutex
}

// NewMockStore returns an empty MockStore ready for use.
func NewMockStore() *MockStore {
	return &MockStore{Sessions: make(map[string]*store.Session)}
}

func (m *MockStore) SetSession(_ context.Context, key string, sess store.Session, ttl int) error {
	if m.SetSessionErr != nil {
		return m.SetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions == nil {
		m.Sessions = make(map[string]*store.Session)
	}
	m.Sessions[key] = &sess
	return nil
}

func (m *MockStore) GetSession(_ context.Context, key string) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[key]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	cp := *s
	return &cp, nil
}

func (m *MockStore) DeleteSession(_ context.Context, key string) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	delete(m.Sessions, key)
	m.mu.Unlock()
	return nil
}

func (m *MockStore) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// Len returns the number of stored sessions.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

// MockProvider implements oauth.Provider for tests.
// AuthCodeURL echoes state and challenge so tests can read them back.
type MockProvider struct {
	AuthURL     string // defaults to https://idp.test/authorize
	EndSession  string // empty means no end_session_endpoint
	Tokens      *oauth.Tokens
	ExchangeErr error
	Info        *oauth.UserInfo
	UserInfoErr error

	mu            sync.Mutex
	LastCode      string
	LastVerifier  string
	LastUserToken string
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) AuthCodeURL(state, codeChallenge string) string {
	base := m.AuthURL
	if base == "" {
		base = "https://idp.test/authorize"
	}
	q := url.Values{"state": {state}}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	return base + "?" + q.Encode()
}

func (m *MockProvider) Exchange(_ context.Context, code, codeVerifier string) (*oauth.Tokens, error) {
	m.mu.Lock()
	m.LastCode = code
	m.LastVerifier = codeVerifier
	m.mu.Unlock()
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	t := *m.Tokens
	return &t, nil
}

func (m *MockProvider) UserInfo(_ context.Context, accessToken string) (*oauth.UserInfo, error) {
	m.mu.Lock()
	m.LastUserToken = accessToken
	m.mu.Unlock()
	if m.UserInfoErr != nil {
		return nil, m.UserInfoErr
	}
	info := *m.Info
	return &info, nil
}

func (m *MockProvider) EndSessionURL(idTokenHint, postLogoutRedirectURI string) string {
	if m.EndSession == "" {
		return ""
	}
	q := url.Values{"id_token_hint": {idTokenHint}, "post_logout_redirect_uri": {postLogoutRedirectURI}}
	return m.EndSession + "?" + q.Encode()
}

// Verifier returns the code_verifier passed to the last Exchange.
func (m *MockProvider) Verifier() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastVerifier
}
