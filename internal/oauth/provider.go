// provider.go -- Identity provider interface and shared types.
package oauth

import (
	"context"
	"time"
)

// Tokens holds the credentials returned by a successful code exchange.
// IDToken has already been verified (signature, aud, exp) by the provider.
type Tokens struct {
	IDToken     string
	AccessToken string
	Subject     string    // "sub" claim of the verified ID token
	Expiry      time.Time // access token expiry; zero if the provider did not say
}

// UserInfo holds the claims returned by the provider's userinfo endpoint.
// Only Sub is guaranteed; the rest depend on granted scopes.
type UserInfo struct {
	Sub               string
	Name              string
	GivenName         string
	FamilyName        string
	PreferredUsername string
	Email             string
	EmailVerified     bool

	// Claims is the full decoded userinfo document.
	Claims map[string]any
}

// Provider is an OpenID Connect identity provider.
// Implementations handle auth URLs, code exchange, token verification and userinfo.
// When PKCE is in use, callers pass the code_challenge to AuthCodeURL and the
// matching code_verifier to Exchange; empty values disable PKCE for that request.
type Provider interface {
	// Name returns a short provider identifier for logs and metrics.
	Name() string

	// AuthCodeURL returns the redirect URL with state and (optional) PKCE code_challenge embedded.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange exchanges the authorization code for verified tokens.
	Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error)

	// UserInfo fetches the signed-in user's profile with the given access token.
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// EndSessionURL returns the provider's RP-initiated logout URL, or "" if the
	// provider does not advertise an end_session_endpoint.
	EndSessionURL(idTokenHint, postLogoutRedirectURI string) string
}
