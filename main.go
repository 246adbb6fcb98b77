package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/gatekeep/internal/auth"
	"github.com/MGallo-Code/gatekeep/internal/config"
	"github.com/MGallo-Code/gatekeep/internal/oauth"
	"github.com/MGallo-Code/gatekeep/internal/store"
	"github.com/MGallo-Code/gatekeep/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// memoryStoreCapacity bounds the in-memory session store used without Redis.
const memoryStoreCapacity = 10000

func main() {
	// .env is optional; real env vars win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("fatal", "err", fmt.Errorf("loading .env: %w", err))
		os.Exit(1)
	}

	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run builds the identity client once, serves until ctx is cancelled, then
// shuts down gracefully. Returns an error instead of exiting so deferred closes run.
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	// Discovery happens once per process; a bad issuer fails startup.
	provider, err := oauth.NewOIDCProvider(ctx, oauth.Config{
		Name:         "okta",
		Issuer:       cfg.Issuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	})
	if err != nil {
		return fmt.Errorf("failed to set up identity provider: %w", err)
	}

	var sessions auth.SessionStore
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis store: %w", err)
		}
		defer rs.Close()
		sessions = rs
	} else {
		slog.Warn("REDIS_URL not set, sessions are kept in memory and lost on restart")
		sessions = store.NewMemoryStore(memoryStoreCapacity, cfg.SessionTTL)
	}

	client := auth.NewClient(provider, sessions, auth.Options{
		PKCE:          cfg.PKCE,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.CookieSecure,
		Origin:        cfg.Origin,
	})

	pages, err := web.NewPages(client, func(originalURI string) string {
		return auth.RestoreOriginalURI(originalURI, cfg.Origin)
	})
	if err != nil {
		return fmt.Errorf("failed to load page templates: %w", err)
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(client, pages, cfg.Guard),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gatekeep listening", "addr", ln.Addr().String(), "issuer", cfg.Issuer, "guard", cfg.Guard)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting connections and waits for in-flight requests.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and directly by smoke tests.
func buildRouter(client *auth.Client, pages *web.Pages, guard config.GuardMode) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", client.CheckHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Every page and auth route reads the request's AuthState.
	r.Group(func(r chi.Router) {
		r.Use(client.LoadAuthState)

		r.Get("/", pages.Home)
		r.Get("/login", pages.Login)
		r.Get("/signin", client.SignIn)
		r.Get("/callback", pages.LoginCallback)
		r.Get("/api/session", client.SessionInfo)

		// CSRF reads the token from the AuthState injected above.
		r.With(auth.CSRFMiddleware).Post("/logout", client.Logout)

		r.Group(func(r chi.Router) {
			r.Use(auth.Guard(guard == config.GuardRedirect))
			r.Get("/protected", pages.Protected)
		})
	})

	return r
}
