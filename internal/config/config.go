// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// GuardMode selects how the /protected route guard behaves.
type GuardMode string

const (
	// GuardPassthrough renders protected pages regardless of auth state.
	GuardPassthrough GuardMode = "passthrough"
	// GuardRedirect sends unauthenticated requests to the sign-in flow.
	GuardRedirect GuardMode = "redirect"
)

// Config holds all env configuration vars for gatekeep.
type Config struct {
	// Identity provider. Issuer and ClientID are required.
	Issuer       string
	ClientID     string
	ClientSecret string // empty for public (PKCE-only) clients
	Scopes       []string
	PKCE         bool

	// Origin is the public base URL of this app, without trailing slash.
	// RedirectURI is always Origin + "/callback".
	Origin      string
	RedirectURI string

	Port         string
	RedisURL     string // empty selects the in-memory session store
	SessionTTL   time.Duration
	CookieSecure bool
	Guard        GuardMode
	LogLevel     slog.Level
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (OKTA_ISSUER, OKTA_CLIENT_ID) are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Kept verbatim: discovery requires an exact match with the issuer claim
	cfg.Issuer = os.Getenv("OKTA_ISSUER")
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("OKTA_ISSUER is required")
	}
	if !strings.HasPrefix(cfg.Issuer, "https://") && !strings.HasPrefix(cfg.Issuer, "http://") {
		return nil, fmt.Errorf("OKTA_ISSUER must be an http(s) URL")
	}

	cfg.ClientID = os.Getenv("OKTA_CLIENT_ID")
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OKTA_CLIENT_ID is required")
	}
	cfg.ClientSecret = os.Getenv("OKTA_CLIENT_SECRET")

	// Space or comma separated, openid is always requested.
	cfg.Scopes = parseScopes(os.Getenv("OKTA_SCOPES"))

	// Default true -- only explicit "false" disables.
	cfg.PKCE = os.Getenv("OKTA_PKCE") != "false"
	if !cfg.PKCE && cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OKTA_CLIENT_SECRET is required when OKTA_PKCE=false")
	}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "3000"
	}

	cfg.Origin = strings.TrimSuffix(os.Getenv("APP_ORIGIN"), "/")
	if cfg.Origin == "" {
		cfg.Origin = "http://localhost:" + cfg.Port
	}
	cfg.RedirectURI = cfg.Origin + "/callback"

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.SessionTTL = envDuration("SESSION_TTL", 1*time.Hour)

	// Default true -- only explicit "false" disables. Needed for plain-http localhost.
	cfg.CookieSecure = os.Getenv("COOKIE_SECURE") != "false"

	switch GuardMode(strings.ToLower(os.Getenv("ROUTE_GUARD"))) {
	case "", GuardPassthrough:
		cfg.Guard = GuardPassthrough
	case GuardRedirect:
		cfg.Guard = GuardRedirect
	default:
		return nil, fmt.Errorf("ROUTE_GUARD must be %q or %q", GuardPassthrough, GuardRedirect)
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	return cfg, nil
}

// parseScopes splits a scope list on spaces and commas, dropping duplicates.
// Falls back to "openid profile" when empty.
func parseScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 0 {
		return []string{"openid", "profile"}
	}
	scopes := []string{"openid"}
	seen := map[string]bool{"openid": true}
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			scopes = append(scopes, f)
		}
	}
	return scopes
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
