// client.go -- Identity client: one per process, shared by every handler and page.
//
// Wraps an oauth.Provider and a session store behind the operations pages need:
// redirect sign-in, callback handling, sign-out, auth state, tokens and user info.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MGallo-Code/gatekeep/internal/oauth"
	"github.com/MGallo-Code/gatekeep/internal/store"
	"github.com/gofrs/uuid/v5"
)

// ErrNoSession is returned by token and user lookups when the request has no
// valid signed-in session.
var ErrNoSession = errors.New("no valid session")

// ErrNoToken is returned when the session exists but holds no such token.
var ErrNoToken = errors.New("token not available")

// ErrInvalidState is returned by HandleCallback when the state cookie is missing,
// malformed, or does not match the state echoed by the provider.
var ErrInvalidState = errors.New("invalid oauth state")

// ErrProviderDenied is returned by HandleCallback when the provider redirected
// back with an error (e.g. access_denied) instead of a code.
var ErrProviderDenied = errors.New("provider returned an error")

// SessionStore defines session storage operations needed by the client.
// Satisfied by *store.RedisStore and *store.MemoryStore.
type SessionStore interface {
	// SetSession stores a session under key with given TTL in seconds.
	SetSession(ctx context.Context, key string, sess store.Session, ttl int) error

	// GetSession fetches a session by key. Returns store.ErrCacheMiss if absent.
	GetSession(ctx context.Context, key string) (*store.Session, error)

	// DeleteSession removes a session by key.
	DeleteSession(ctx context.Context, key string) error

	// CheckHealth reports whether the store is reachable.
	CheckHealth(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	PKCE          bool
	SessionTTL    time.Duration
	SecureCookies bool
	// Origin is the app's public base URL; used for post-logout redirects
	// and to relativise original URIs.
	Origin string
}

// Client is the process-wide identity client.
// Construct once in main and pass it to whatever needs it.
type Client struct {
	provider oauth.Provider
	sessions SessionStore
	opts     Options
	now      func() time.Time
}

// NewClient returns a Client. SessionTTL defaults to one hour.
func NewClient(provider oauth.Provider, sessions SessionStore, opts Options) *Client {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	return &Client{provider: provider, sessions: sessions, opts: opts, now: time.Now}
}

// AuthState is the read-only authentication state of one request.
type AuthState struct {
	IsAuthenticated bool
	Subject         string
	ExpiresAt       time.Time
	// SessionID is the stored session's public id, safe to log.
	SessionID string

	sessionKey string
	csrfToken  []byte
}

// CSRFToken returns the session's CSRF token encoded for forms and headers,
// or "" when unauthenticated.
func (s *AuthState) CSRFToken() string {
	if s == nil || len(s.csrfToken) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(s.csrfToken)
}

// oauthStateCookie is the payload stored in the state cookie during the redirect round-trip.
type oauthStateCookie struct {
	State       string `json:"state"`
	Verifier    string `json:"verifier,omitempty"`
	OriginalURI string `json:"original_uri"`
}

// SignInWithRedirect starts the redirect sign-in: generates state (and a PKCE
// verifier when enabled), stores them with originalURI in a short-lived HttpOnly
// cookie, and redirects the browser to the provider.
func (c *Client) SignInWithRedirect(w http.ResponseWriter, r *http.Request, originalURI string) {
	var stateBytes [32]byte
	if _, err := rand.Read(stateBytes[:]); err != nil {
		InternalServerError(w, r, err)
		return
	}
	sc := oauthStateCookie{
		State:       base64.RawURLEncoding.EncodeToString(stateBytes[:]),
		OriginalURI: originalURI,
	}

	var codeChallenge string
	if c.opts.PKCE {
		var verifierBytes [32]byte
		if _, err := rand.Read(verifierBytes[:]); err != nil {
			InternalServerError(w, r, err)
			return
		}
		sc.Verifier = base64.RawURLEncoding.EncodeToString(verifierBytes[:])
		challenge := sha256.Sum256([]byte(sc.Verifier))
		codeChallenge = base64.RawURLEncoding.EncodeToString(challenge[:])
	}

	c.setStateCookie(w, sc)
	signInsStarted.Inc()
	logDebug(r, "redirecting to identity provider", "provider", c.provider.Name(), "pkce", c.opts.PKCE)
	http.Redirect(w, r, c.provider.AuthCodeURL(sc.State, codeChallenge), http.StatusFound)
}

// HandleCallback completes the redirect sign-in. It verifies state, exchanges
// the code, stores a new session and sets the session cookie.
// Returns the original URI recorded by SignInWithRedirect.
func (c *Client) HandleCallback(w http.ResponseWriter, r *http.Request) (string, error) {
	q := r.URL.Query()

	// Read and immediately clear the state cookie to prevent replay.
	stateCookie, err := r.Cookie(stateCookieName(c.opts.SecureCookies))
	c.clearStateCookie(w)

	// Provider-side failure (user cancelled, consent denied) arrives as ?error=
	if e := q.Get("error"); e != "" {
		callbacks.WithLabelValues("provider_error").Inc()
		return "", fmt.Errorf("%w: %s: %s", ErrProviderDenied, e, q.Get("error_description"))
	}

	// Decode the state cookie set by SignInWithRedirect
	if err != nil {
		callbacks.WithLabelValues("invalid_state").Inc()
		return "", fmt.Errorf("%w: missing state cookie", ErrInvalidState)
	}
	rawJSON, err := base64.RawURLEncoding.DecodeString(stateCookie.Value)
	if err != nil {
		callbacks.WithLabelValues("invalid_state").Inc()
		return "", fmt.Errorf("%w: bad cookie encoding", ErrInvalidState)
	}
	var sc oauthStateCookie
	if err := json.Unmarshal(rawJSON, &sc); err != nil {
		callbacks.WithLabelValues("invalid_state").Inc()
		return "", fmt.Errorf("%w: bad cookie json", ErrInvalidState)
	}
	// Constant-time comparison prevents timing oracle on state value.
	if sc.State == "" || subtle.ConstantTimeCompare([]byte(sc.State), []byte(q.Get("state"))) != 1 {
		callbacks.WithLabelValues("invalid_state").Inc()
		return "", fmt.Errorf("%w: state mismatch", ErrInvalidState)
	}

	code := q.Get("code")
	if code == "" {
		callbacks.WithLabelValues("invalid_state").Inc()
		return "", fmt.Errorf("%w: missing code", ErrInvalidState)
	}

	// Exchange code (+ verifier) for tokens; the provider verifies the ID token
	tokens, err := c.provider.Exchange(r.Context(), code, sc.Verifier)
	if err != nil {
		callbacks.WithLabelValues("exchange_failed").Inc()
		return "", fmt.Errorf("oauth callback: %w", err)
	}

	// Drop any session this browser already holds so its tokens don't outlive it
	if oldKey, ok := c.requestSessionKey(r); ok {
		if err := c.sessions.DeleteSession(r.Context(), oldKey); err != nil && !errors.Is(err, store.ErrCacheMiss) {
			logWarn(r, "sign in: deleting previous session failed", "error", err)
		}
	}

	sessionID, err := c.createSession(w, r, tokens)
	if err != nil {
		callbacks.WithLabelValues("store_error").Inc()
		return "", err
	}

	callbacks.WithLabelValues("ok").Inc()
	logInfo(r, "user signed in", "provider", c.provider.Name(), "sub", tokens.Subject, "session_id", sessionID.String())
	return sc.OriginalURI, nil
}

// createSession persists tokens under a fresh session token and sets the cookie.
// Session lifetime is SessionTTL, cut short by the access token's expiry.
// Returns the new session's id.
func (c *Client) createSession(w http.ResponseWriter, r *http.Request, tokens *oauth.Tokens) (uuid.UUID, error) {
	sessionToken, tokenHash, err := GenerateToken()
	if err != nil {
		return uuid.Nil, err
	}
	csrfToken, err := GenerateCSRFToken()
	if err != nil {
		return uuid.Nil, err
	}
	// Time-ordered id links log lines for one session without exposing the token
	sessionID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating session id: %w", err)
	}

	now := c.now()
	expiresAt := now.Add(c.opts.SessionTTL)
	if !tokens.Expiry.IsZero() && tokens.Expiry.Before(expiresAt) {
		expiresAt = tokens.Expiry
	}
	ttl := int(expiresAt.Sub(now).Seconds())
	if ttl <= 0 {
		return uuid.Nil, fmt.Errorf("creating session: tokens already expired")
	}

	if err := c.sessions.SetSession(r.Context(), sessionKey(tokenHash[:]), store.Session{
		ID:          sessionID,
		Subject:     tokens.Subject,
		IDToken:     tokens.IDToken,
		AccessToken: tokens.AccessToken,
		CSRFToken:   csrfToken[:],
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}, ttl); err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}

	SetSessionCookie(w, *sessionToken, expiresAt, c.opts.SecureCookies)
	return sessionID, nil
}

// SignOut ends the request's session: deletes it from the store and clears the cookie.
// Returns where to send the browser next -- the provider's end-session URL when
// the issuer advertises one, otherwise the app origin.
// The cookie is cleared even when the store delete fails.
func (c *Client) SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	// Cookie goes first so a store failure still signs the browser out
	ClearSessionCookie(w, c.opts.SecureCookies)
	signOuts.Inc()

	postLogout := c.opts.Origin + "/"
	key, ok := c.requestSessionKey(r)
	if !ok {
		logDebug(r, "sign out without session cookie")
		return postLogout, nil
	}

	// Read the session once for the id_token_hint and its id
	var idTokenHint, sessionID string
	if sess, err := c.sessions.GetSession(ctx, key); err == nil {
		idTokenHint = sess.IDToken
		sessionID = sess.ID.String()
	} else if !errors.Is(err, store.ErrCacheMiss) {
		logWarn(r, "sign out: session lookup failed", "error", err)
	}

	if err := c.sessions.DeleteSession(ctx, key); err != nil {
		return postLogout, fmt.Errorf("deleting session %q: %w", sessionID, err)
	}
	logInfo(r, "user signed out", "session_id", sessionID)

	// Provider logout only when there's a hint to send and the issuer supports it
	if idTokenHint == "" {
		return postLogout, nil
	}
	if u := c.provider.EndSessionURL(idTokenHint, postLogout); u != "" {
		return u, nil
	}
	return postLogout, nil
}

// AuthState resolves the request's session cookie.
// A missing, unknown or expired session is unauthenticated, not an error.
// Returns an error only when the session store itself fails.
func (c *Client) AuthState(r *http.Request) (*AuthState, error) {
	key, ok := c.requestSessionKey(r)
	if !ok {
		return &AuthState{}, nil
	}
	sess, err := c.sessions.GetSession(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			return &AuthState{}, nil
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.Expired(c.now()) {
		return &AuthState{}, nil
	}
	return &AuthState{
		IsAuthenticated: true,
		Subject:         sess.Subject,
		ExpiresAt:       sess.ExpiresAt,
		SessionID:       sess.ID.String(),
		sessionKey:      key,
		csrfToken:       sess.CSRFToken,
	}, nil
}

// IDToken returns the session's raw ID token.
func (c *Client) IDToken(ctx context.Context, st *AuthState) (string, error) {
	sess, err := c.session(ctx, st)
	if err != nil {
		identityFetchFailures.WithLabelValues("id_token").Inc()
		return "", err
	}
	if sess.IDToken == "" {
		identityFetchFailures.WithLabelValues("id_token").Inc()
		return "", fmt.Errorf("id token: %w", ErrNoToken)
	}
	return sess.IDToken, nil
}

// AccessToken returns the session's access token.
func (c *Client) AccessToken(ctx context.Context, st *AuthState) (string, error) {
	sess, err := c.session(ctx, st)
	if err != nil {
		identityFetchFailures.WithLabelValues("access_token").Inc()
		return "", err
	}
	if sess.AccessToken == "" {
		identityFetchFailures.WithLabelValues("access_token").Inc()
		return "", fmt.Errorf("access token: %w", ErrNoToken)
	}
	return sess.AccessToken, nil
}

// User fetches the signed-in user's profile from the provider.
func (c *Client) User(ctx context.Context, st *AuthState) (*oauth.UserInfo, error) {
	accessToken, err := c.AccessToken(ctx, st)
	if err != nil {
		return nil, err
	}
	info, err := c.provider.UserInfo(ctx, accessToken)
	if err != nil {
		identityFetchFailures.WithLabelValues("userinfo").Inc()
		return nil, err
	}
	return info, nil
}

// session re-reads the stored session behind st. Tokens are never copied into
// AuthState, so each lookup sees sign-outs from other requests.
func (c *Client) session(ctx context.Context, st *AuthState) (*store.Session, error) {
	if st == nil || !st.IsAuthenticated || st.sessionKey == "" {
		return nil, ErrNoSession
	}
	sess, err := c.sessions.GetSession(ctx, st.sessionKey)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.Expired(c.now()) {
		return nil, ErrNoSession
	}
	return sess, nil
}

// requestSessionKey reads the session cookie and maps it to its store key.
func (c *Client) requestSessionKey(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName(c.opts.SecureCookies))
	if err != nil || cookie.Value == "" {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return "", false
	}
	hash := sha256.Sum256(decoded)
	return sessionKey(hash[:]), true
}

// setStateCookie stores the sign-in round-trip state in a short-lived HttpOnly cookie.
func (c *Client) setStateCookie(w http.ResponseWriter, sc oauthStateCookie) {
	payload, _ := json.Marshal(sc)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(c.opts.SecureCookies),
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600, // 10 minutes
	})
}

// clearStateCookie expires the state cookie immediately.
func (c *Client) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(c.opts.SecureCookies),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
