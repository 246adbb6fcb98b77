// oidc.go -- Generic OpenID Connect provider (Okta or any discovery-capable issuer).
package oauth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Config configures an OIDCProvider.
type Config struct {
	Name         string // defaults to "oidc"
	Issuer       string
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURI  string
	Scopes       []string // defaults to openid + profile
}

// OIDCProvider implements Provider using OIDC discovery + the OAuth2 code flow.
type OIDCProvider struct {
	name          string
	config        *oauth2.Config
	provider      *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	endSessionURL string
}

// NewOIDCProvider creates an OIDCProvider by fetching the issuer's discovery document.
// Makes an outbound HTTP request at startup; returns an error if the issuer is unreachable
// or the discovery document's issuer does not match cfg.Issuer.
func NewOIDCProvider(ctx context.Context, cfg Config) (*OIDCProvider, error) {
	p, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	// end_session_endpoint is optional and not part of go-oidc's typed fields.
	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.Claims(&extra); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "oidc"
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile"}
	}

	return &OIDCProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     p.Endpoint(),
			Scopes:       scopes,
		},
		provider:      p,
		verifier:      p.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		endSessionURL: extra.EndSessionEndpoint,
	}, nil
}

// Name returns the configured provider name.
func (p *OIDCProvider) Name() string { return p.name }

// AuthCodeURL builds the authorization URL with state and, if codeChallenge is set, a PKCE S256 challenge.
func (p *OIDCProvider) AuthCodeURL(state, codeChallenge string) string {
	if codeChallenge == "" {
		return p.config.AuthCodeURL(state)
	}
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code for tokens.
// Verifies the returned ID token signature against the issuer's JWKS, checks aud + exp.
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	token, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verifying id token: %w", err)
	}

	return &Tokens{
		IDToken:     rawIDToken,
		AccessToken: token.AccessToken,
		Subject:     idToken.Subject,
		Expiry:      token.Expiry,
	}, nil
}

// UserInfo calls the issuer's userinfo endpoint with the access token as bearer credential.
func (p *OIDCProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("userinfo: empty access token")
	}
	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}

	var c struct {
		Name              string `json:"name"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := info.Claims(&c); err != nil {
		return nil, fmt.Errorf("decoding userinfo claims: %w", err)
	}
	var all map[string]any
	if err := info.Claims(&all); err != nil {
		return nil, fmt.Errorf("decoding userinfo claims: %w", err)
	}

	return &UserInfo{
		Sub:               info.Subject,
		Name:              c.Name,
		GivenName:         c.GivenName,
		FamilyName:        c.FamilyName,
		PreferredUsername: c.PreferredUsername,
		Email:             info.Email,
		EmailVerified:     info.EmailVerified,
		Claims:            all,
	}, nil
}

// EndSessionURL builds the RP-initiated logout URL from the discovered end_session_endpoint.
func (p *OIDCProvider) EndSessionURL(idTokenHint, postLogoutRedirectURI string) string {
	if p.endSessionURL == "" {
		return ""
	}
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
