// middleware_test.go

// unit tests for LoadAuthState, StateFromContext and Guard.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MGallo-Code/gatekeep/internal/testutil"
)

// stateRecorder captures the AuthState seen by the wrapped handler.
type stateRecorder struct {
	st     *AuthState
	ok     bool
	called bool
}

func (s *stateRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.called = true
	s.st, s.ok = StateFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

// --- StateFromContext ---

func TestStateFromContext(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		if _, ok := StateFromContext(context.Background()); ok {
			t.Error("expected ok=false on empty context")
		}
	})

	t.Run("nil state is not ok", func(t *testing.T) {
		if _, ok := StateFromContext(ContextWithState(context.Background(), nil)); ok {
			t.Error("expected ok=false for nil state")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := &AuthState{IsAuthenticated: true, Subject: "sub"}
		got, ok := StateFromContext(ContextWithState(context.Background(), want))
		if !ok || got != want {
			t.Errorf("expected %p, got %p (ok=%v)", want, got, ok)
		}
	})
}

// --- LoadAuthState ---

func TestLoadAuthState(t *testing.T) {
	t.Run("injects unauthenticated state without cookie", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		rec := &stateRecorder{}
		c.LoadAuthState(rec).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if !rec.ok || rec.st.IsAuthenticated {
			t.Errorf("expected unauthenticated state, got ok=%v st=%+v", rec.ok, rec.st)
		}
	})

	t.Run("injects authenticated state for signed-in request", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		rec := &stateRecorder{}
		c.LoadAuthState(rec).ServeHTTP(httptest.NewRecorder(), signedInRequest(t, c))

		if !rec.ok || !rec.st.IsAuthenticated {
			t.Errorf("expected authenticated state, got ok=%v st=%+v", rec.ok, rec.st)
		}
	})

	t.Run("store failure continues without state", func(t *testing.T) {
		ms := testutil.NewMockStore()
		c := newTestClient(ms, newTestProvider())
		r := signedInRequest(t, c)
		ms.GetSessionErr = errors.New("redis down")

		rec := &stateRecorder{}
		w := httptest.NewRecorder()
		c.LoadAuthState(rec).ServeHTTP(w, r)

		if !rec.called {
			t.Fatal("handler should still be called")
		}
		if rec.ok {
			t.Error("expected no state in context")
		}
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})
}

// --- Guard ---

func TestGuardPassthrough(t *testing.T) {
	states := map[string]*AuthState{
		"authenticated":   {IsAuthenticated: true},
		"unauthenticated": {},
		"no state":        nil,
	}
	for name, st := range states {
		t.Run(name+" renders children", func(t *testing.T) {
			rec := &stateRecorder{}
			h := Guard(false)(rec)
			if st != nil {
				h = withState(st, h)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

			if !rec.called {
				t.Error("passthrough guard must always render children")
			}
			if w.Code != http.StatusOK {
				t.Errorf("status: expected 200, got %d", w.Code)
			}
		})
	}
}

func TestGuardRedirect(t *testing.T) {
	t.Run("unauthenticated is redirected to signin with original URI", func(t *testing.T) {
		rec := &stateRecorder{}
		h := withState(&AuthState{}, Guard(true)(rec))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected?tab=1", nil))

		if rec.called {
			t.Error("children should not render")
		}
		if w.Code != http.StatusFound {
			t.Fatalf("status: expected 302, got %d", w.Code)
		}
		loc, _ := url.Parse(w.Header().Get("Location"))
		if loc.Path != "/signin" {
			t.Errorf("Location path: expected /signin, got %q", loc.Path)
		}
		if got := loc.Query().Get("originalUri"); got != "/protected?tab=1" {
			t.Errorf("originalUri: expected %q, got %q", "/protected?tab=1", got)
		}
	})

	t.Run("authenticated renders children", func(t *testing.T) {
		rec := &stateRecorder{}
		withState(&AuthState{IsAuthenticated: true}, Guard(true)(rec)).
			ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/protected", nil))
		if !rec.called {
			t.Error("children should render for authenticated request")
		}
	})

	t.Run("missing state renders children", func(t *testing.T) {
		rec := &stateRecorder{}
		Guard(true)(rec).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/protected", nil))
		if !rec.called {
			t.Error("children should render when state is unknown")
		}
	})
}
