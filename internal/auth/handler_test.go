// handler_test.go

// unit tests for RestoreOriginalURI and the /signin, /logout, /api/session and /health handlers.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MGallo-Code/gatekeep/internal/testutil"
)

// --- RestoreOriginalURI ---

func TestRestoreOriginalURI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty defaults to root", "", "/"},
		{"relative path kept", "/protected", "/protected"},
		{"query and fragment kept", "/protected?tab=1#top", "/protected?tab=1#top"},
		{"same-origin absolute relativised", testOrigin + "/protected", "/protected"},
		{"same-origin host is case-insensitive", "https://APP.test/login", "/login"},
		{"foreign origin rejected", "https://evil.test/protected", "/"},
		{"scheme mismatch rejected", "http://app.test/protected", "/"},
		{"protocol-relative rejected", "//evil.test/x", "/"},
		{"backslash trick rejected", "/\\evil.test", "/"},
		{"relative without slash rejected", "protected", "/"},
		{"javascript scheme rejected", "javascript:alert(1)", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RestoreOriginalURI(tt.in, testOrigin); got != tt.want {
				t.Errorf("RestoreOriginalURI(%q): expected %q, got %q", tt.in, tt.want, got)
			}
		})
	}
}

// --- SignIn ---

func TestSignIn(t *testing.T) {
	decodeOriginal := func(t *testing.T, w *httptest.ResponseRecorder) string {
		t.Helper()
		ck := findCookie(w, "__Host-oauth-state")
		if ck == nil {
			t.Fatal("state cookie not set")
		}
		raw, _ := base64.RawURLEncoding.DecodeString(ck.Value)
		var sc oauthStateCookie
		if err := json.Unmarshal(raw, &sc); err != nil {
			t.Fatalf("decoding state cookie: %v", err)
		}
		return sc.OriginalURI
	}

	t.Run("records sanitised original URI", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		w := httptest.NewRecorder()
		c.SignIn(w, httptest.NewRequest(http.MethodGet, "/signin?originalUri=%2Fprotected", nil))

		if w.Code != http.StatusFound {
			t.Fatalf("status: expected 302, got %d", w.Code)
		}
		if got := decodeOriginal(t, w); got != "/protected" {
			t.Errorf("OriginalURI: expected /protected, got %q", got)
		}
	})

	t.Run("foreign original URI becomes root", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		w := httptest.NewRecorder()
		c.SignIn(w, httptest.NewRequest(http.MethodGet, "/signin?originalUri="+url.QueryEscape("https://evil.test/"), nil))

		if got := decodeOriginal(t, w); got != "/" {
			t.Errorf("OriginalURI: expected /, got %q", got)
		}
	})
}

// --- Logout ---

func TestLogout(t *testing.T) {
	t.Run("redirects with 303 and ends session", func(t *testing.T) {
		ms := testutil.NewMockStore()
		c := newTestClient(ms, newTestProvider())
		r := signedInRequest(t, c)
		r.Method = http.MethodPost

		w := httptest.NewRecorder()
		c.Logout(w, r)

		if w.Code != http.StatusSeeOther {
			t.Errorf("status: expected 303, got %d", w.Code)
		}
		if w.Header().Get("Location") != testOrigin+"/" {
			t.Errorf("Location: got %q", w.Header().Get("Location"))
		}
		if ms.Len() != 0 {
			t.Error("expected session deleted")
		}
	})

	t.Run("store failure still redirects", func(t *testing.T) {
		ms := testutil.NewMockStore()
		c := newTestClient(ms, newTestProvider())
		r := signedInRequest(t, c)
		ms.DeleteSessionErr = errors.New("redis down")

		w := httptest.NewRecorder()
		c.Logout(w, r)
		if w.Code != http.StatusSeeOther {
			t.Errorf("status: expected 303, got %d", w.Code)
		}
	})
}

// --- SessionInfo ---

func TestSessionInfo(t *testing.T) {
	serve := func(c *Client, r *http.Request) (*httptest.ResponseRecorder, sessionResponse) {
		w := httptest.NewRecorder()
		c.LoadAuthState(http.HandlerFunc(c.SessionInfo)).ServeHTTP(w, r)
		var body sessionResponse
		json.NewDecoder(w.Body).Decode(&body)
		return w, body
	}

	t.Run("signed out returns empty tokens", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		w, body := serve(c, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", w.Code)
		}
		if body.Authenticated || body.IDToken != "" || body.AccessToken != "" {
			t.Errorf("expected empty signed-out body, got %+v", body)
		}
		if w.Header().Get("Cache-Control") != "no-store" {
			t.Error("expected Cache-Control: no-store")
		}
	})

	t.Run("signed in returns tokens, empty again after logout", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		r := signedInRequest(t, c)

		_, body := serve(c, r)
		if !body.Authenticated || body.IDToken != "id-token-abc" || body.AccessToken != "access-token-xyz" {
			t.Fatalf("unexpected signed-in body %+v", body)
		}
		if body.Subject != "00u-test" {
			t.Errorf("sub: expected 00u-test, got %q", body.Subject)
		}

		c.Logout(httptest.NewRecorder(), r)

		_, body = serve(c, r)
		if body.Authenticated || body.IDToken != "" || body.AccessToken != "" {
			t.Errorf("expected empty body after logout, got %+v", body)
		}
	})

	t.Run("missing access token leaves only that field empty", func(t *testing.T) {
		mp := newTestProvider()
		mp.Tokens.AccessToken = ""
		c := newTestClient(testutil.NewMockStore(), mp)

		_, body := serve(c, signedInRequest(t, c))
		if body.IDToken != "id-token-abc" || body.AccessToken != "" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("store failure returns 503", func(t *testing.T) {
		ms := testutil.NewMockStore()
		c := newTestClient(ms, newTestProvider())
		r := signedInRequest(t, c)
		ms.GetSessionErr = errors.New("redis down")

		w, _ := serve(c, r)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status: expected 503, got %d", w.Code)
		}
	})
}

// --- CheckHealth ---

func TestCheckHealth(t *testing.T) {
	t.Run("healthy store returns 200", func(t *testing.T) {
		c := newTestClient(testutil.NewMockStore(), newTestProvider())
		w := httptest.NewRecorder()
		c.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status: expected 200, got %d", w.Code)
		}
	})

	t.Run("unhealthy store returns 503", func(t *testing.T) {
		ms := testutil.NewMockStore()
		ms.HealthErr = errors.New("redis down")
		c := newTestClient(ms, newTestProvider())
		w := httptest.NewRecorder()
		c.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status: expected 503, got %d", w.Code)
		}
		var body struct {
			Sessions string `json:"sessions"`
		}
		json.NewDecoder(w.Body).Decode(&body)
		if body.Sessions != "error" {
			t.Errorf("sessions: expected error, got %q", body.Sessions)
		}
	})
}
