// issuer.go
//
// In-process OpenID Connect issuer for tests. Serves discovery, JWKS, an
// authorize endpoint that redirects straight back with a code, a token endpoint
// that enforces PKCE and returns RS256-signed ID tokens, userinfo and end-session.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

const keyID = "test-key"

// Profile is what userinfo returns and what ID tokens carry as sub.
type Profile struct {
	Subject string
	Name    string
	Email   string
}

// Issuer is a running fake identity provider.
type Issuer struct {
	URL      string
	ClientID string
	Profile  Profile

	srv *httptest.Server
	key *rsa.PrivateKey

	mu          sync.Mutex
	codes       map[string]string // code -> PKCE challenge ("" when none)
	endSession  bool
	tokenError  string
	omitIDToken bool
	lastAuthz   string
}

// NewIssuer starts an issuer for clientID. Call Close when done.
func NewIssuer(clientID string) (*Issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	i := &Issuer{
		ClientID: clientID,
		Profile:  Profile{Subject: "00u-test", Name: "Ada Lovelace", Email: "ada@example.com"},
		key:      key,
		codes:    make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", i.discovery)
	mux.HandleFunc("GET /keys", i.jwks)
	mux.HandleFunc("GET /authorize", i.authorize)
	mux.HandleFunc("POST /token", i.token)
	mux.HandleFunc("GET /userinfo", i.userinfo)
	mux.HandleFunc("GET /logout", i.logout)
	i.srv = httptest.NewServer(mux)
	i.URL = i.srv.URL
	return i, nil
}

// Close shuts the issuer down.
func (i *Issuer) Close() { i.srv.Close() }

// SetEndSession toggles advertising end_session_endpoint in discovery.
func (i *Issuer) SetEndSession(on bool) {
	i.mu.Lock()
	i.endSession = on
	i.mu.Unlock()
}

// FailToken makes /token answer 400 with the given OAuth error code.
func (i *Issuer) FailToken(code string) {
	i.mu.Lock()
	i.tokenError = code
	i.mu.Unlock()
}

// OmitIDToken makes /token leave id_token out of its response.
func (i *Issuer) OmitIDToken() {
	i.mu.Lock()
	i.omitIDToken = true
	i.mu.Unlock()
}

// IssueCode mints a single-use authorization code bound to a PKCE challenge.
func (i *Issuer) IssueCode(challenge string) string {
	var b [16]byte
	rand.Read(b[:])
	code := base64.RawURLEncoding.EncodeToString(b[:])
	i.mu.Lock()
	i.codes[code] = challenge
	i.mu.Unlock()
	return code
}

// LastAuthorization returns the Authorization header last seen by /userinfo.
func (i *Issuer) LastAuthorization() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastAuthz
}

func (i *Issuer) discovery(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"issuer":                                i.URL,
		"authorization_endpoint":                i.URL + "/authorize",
		"token_endpoint":                        i.URL + "/token",
		"jwks_uri":                              i.URL + "/keys",
		"userinfo_endpoint":                     i.URL + "/userinfo",
		"response_types_supported":              []string{"code"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	i.mu.Lock()
	if i.endSession {
		doc["end_session_endpoint"] = i.URL + "/logout"
	}
	i.mu.Unlock()
	writeJSON(w, http.StatusOK, doc)
}

func (i *Issuer) jwks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &i.key.PublicKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

// authorize skips any login UI and redirects back with a fresh code.
func (i *Issuer) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != i.ClientID || q.Get("response_type") != "code" {
		http.Error(w, "bad authorize request", http.StatusBadRequest)
		return
	}
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	back := redirect.Query()
	back.Set("code", i.IssueCode(q.Get("code_challenge")))
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (i *Issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	i.mu.Lock()
	tokenError, omitIDToken := i.tokenError, i.omitIDToken
	challenge, ok := i.codes[r.PostForm.Get("code")]
	if ok {
		delete(i.codes, r.PostForm.Get("code"))
	}
	i.mu.Unlock()

	if tokenError != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": tokenError})
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	if challenge != "" {
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	}

	resp := map[string]any{
		"access_token": "at-" + i.Profile.Subject,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !omitIDToken {
		idToken, err := i.SignIDToken(time.Now().Add(time.Hour))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		resp["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, resp)
}

// SignIDToken returns a compact RS256 ID token for Profile expiring at exp.
func (i *Issuer) SignIDToken(exp time.Time) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: i.key, KeyID: keyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]any{
		"iss":  i.URL,
		"sub":  i.Profile.Subject,
		"aud":  i.ClientID,
		"iat":  time.Now().Unix(),
		"exp":  exp.Unix(),
		"name": i.Profile.Name,
	})
	if err != nil {
		return "", err
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return jws.CompactSerialize()
}

func (i *Issuer) userinfo(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	i.mu.Lock()
	i.lastAuthz = authz
	i.mu.Unlock()
	if !strings.HasPrefix(authz, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":            i.Profile.Subject,
		"name":           i.Profile.Name,
		"email":          i.Profile.Email,
		"email_verified": true,
		"zoneinfo":       "Europe/London",
	})
}

// logout sends the browser back to post_logout_redirect_uri when given.
func (i *Issuer) logout(w http.ResponseWriter, r *http.Request) {
	if next := r.URL.Query().Get("post_logout_redirect_uri"); next != "" {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
