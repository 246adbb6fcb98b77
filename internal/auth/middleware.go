// middleware.go

// Auth state middleware and the route guard.
package auth

import (
	"context"
	"net/http"
	"net/url"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const authStateKey contextKey = "auth_state"

// StateFromContext retrieves the request's AuthState.
// Returns nil and false if LoadAuthState hasn't run or the session store failed.
func StateFromContext(ctx context.Context) (*AuthState, bool) {
	st, ok := ctx.Value(authStateKey).(*AuthState)
	return st, ok && st != nil
}

// ContextWithState returns ctx carrying st.
func ContextWithState(ctx context.Context, st *AuthState) context.Context {
	return context.WithValue(ctx, authStateKey, st)
}

// LoadAuthState resolves the session cookie once per request and injects the
// AuthState into context. On store failure no state is injected and the request
// continues; pages treat a missing state as "not ready" and render nothing.
func (c *Client) LoadAuthState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := c.AuthState(r)
		if err != nil {
			logError(r, "loading auth state failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithState(r.Context(), st)))
	})
}

// Guard wraps protected routes.
//
// With redirect=false it renders the wrapped handler for every request, signed
// in or not; the page itself decides what to show. With redirect=true a request
// whose state is known to be unauthenticated is sent to /signin with its URI as
// originalUri. Requests without any state (store failure) pass through either way.
func Guard(redirect bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !redirect {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := StateFromContext(r.Context())
			if ok && !st.IsAuthenticated {
				logDebug(r, "guard redirecting unauthenticated request")
				http.Redirect(w, r, "/signin?originalUri="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
