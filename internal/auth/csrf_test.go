// csrf_test.go

// unit tests for GenerateCSRFToken, ValidateCSRFToken, and CSRFMiddleware.
package auth

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// passHandler returns 200 when reached, proving the middleware let the request through.
var passHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// fixedCSRF is a deterministic raw token for middleware tests.
func fixedCSRF() []byte {
	tok := make([]byte, 32)
	for i := range tok {
		tok[i] = byte(i + 100)
	}
	return tok
}

// withState wraps next so every request carries st, as LoadAuthState would.
func withState(st *AuthState, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ContextWithState(r.Context(), st)))
	})
}

// assertForbidden checks response is 403 JSON with generic error body.
func assertForbidden(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: expected 403, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	if body := strings.TrimSpace(string(bodyBytes)); body != `{"message":"forbidden"}` {
		t.Errorf("body: expected {\"message\":\"forbidden\"}, got %q", body)
	}
}

// --- GenerateCSRFToken ---

func TestGenerateCSRFToken(t *testing.T) {
	t.Run("returns distinct 32-byte tokens", func(t *testing.T) {
		a, err := GenerateCSRFToken()
		if err != nil {
			t.Fatalf("GenerateCSRFToken returned error: %v", err)
		}
		b, err := GenerateCSRFToken()
		if err != nil {
			t.Fatalf("GenerateCSRFToken returned error: %v", err)
		}
		if *a == *b {
			t.Error("two tokens should not be equal")
		}
	})
}

// --- ValidateCSRFToken ---

func TestValidateCSRFToken(t *testing.T) {
	stored := fixedCSRF()
	good := base64.RawURLEncoding.EncodeToString(stored)

	tests := []struct {
		name     string
		provided string
		stored   []byte
		want     bool
	}{
		{"matching token", good, stored, true},
		{"empty provided", "", stored, false},
		{"empty stored", good, nil, false},
		{"not base64", "***", stored, false},
		{"different token", base64.RawURLEncoding.EncodeToString(make([]byte, 32)), stored, false},
		{"truncated token", good[:10], stored, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCSRFToken(tt.provided, tt.stored); got != tt.want {
				t.Errorf("ValidateCSRFToken: expected %v, got %v", tt.want, got)
			}
		})
	}
}

// --- CSRFMiddleware ---

func TestCSRFMiddleware(t *testing.T) {
	token := fixedCSRF()
	encoded := base64.RawURLEncoding.EncodeToString(token)
	authed := &AuthState{IsAuthenticated: true, csrfToken: token}
	h := withState(authed, CSRFMiddleware(passHandler))

	t.Run("GET passes without token", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})

	t.Run("POST with header token passes", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/logout", nil)
		r.Header.Set("X-CSRF-Token", encoded)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})

	t.Run("POST with form token passes", func(t *testing.T) {
		form := url.Values{"csrf_token": {encoded}}
		r := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})

	t.Run("POST without token is forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/logout", nil))
		assertForbidden(t, w.Result())
	})

	t.Run("DELETE with wrong token is forbidden", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodDelete, "/logout", nil)
		r.Header.Set("X-CSRF-Token", base64.RawURLEncoding.EncodeToString(make([]byte, 32)))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assertForbidden(t, w.Result())
	})

	t.Run("unauthenticated POST passes", func(t *testing.T) {
		anon := withState(&AuthState{}, CSRFMiddleware(passHandler))
		w := httptest.NewRecorder()
		anon.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/logout", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})

	t.Run("POST without any state passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		CSRFMiddleware(passHandler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/logout", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})
}
