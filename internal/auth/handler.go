// handler.go -- HTTP handlers for /signin, /logout and /api/session.
package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

// RestoreOriginalURI turns the URI recorded at sign-in into a same-origin
// relative URL to land on after the callback. Empty, unparseable or foreign
// URIs become "/".
func RestoreOriginalURI(originalURI, origin string) string {
	if originalURI == "" {
		return "/"
	}
	u, err := url.Parse(originalURI)
	if err != nil {
		return "/"
	}
	if u.Scheme != "" || u.Host != "" {
		o, err := url.Parse(origin)
		if err != nil || !strings.EqualFold(u.Scheme, o.Scheme) || !strings.EqualFold(u.Host, o.Host) {
			return "/"
		}
	}

	// "//host" and "/\host" are treated as network paths by browsers.
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") || strings.HasPrefix(u.Path, "/\\") {
		return "/"
	}
	rel := u.EscapedPath()
	if u.RawQuery != "" {
		rel += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		rel += "#" + u.EscapedFragment()
	}
	return rel
}

// SignIn handles GET /signin?originalUri=... -- starts the redirect sign-in.
// originalUri is sanitised to a same-origin path before it is stored.
func (c *Client) SignIn(w http.ResponseWriter, r *http.Request) {
	originalURI := RestoreOriginalURI(r.URL.Query().Get("originalUri"), c.opts.Origin)
	c.SignInWithRedirect(w, r, originalURI)
}

// Logout handles POST /logout -- ends the session and redirects to the
// provider's end-session endpoint (or the app origin).
// Store failures are logged; the cookie is cleared regardless.
func (c *Client) Logout(w http.ResponseWriter, r *http.Request) {
	next, err := c.SignOut(r.Context(), w, r)
	if err != nil {
		logError(r, "sign out: failed to delete session", "error", err)
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// sessionResponse is the JSON body of GET /api/session.
type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"sub,omitempty"`
	IDToken       string `json:"id_token"`
	AccessToken   string `json:"access_token"`
}

// SessionInfo handles GET /api/session -- reports auth state and the session's
// tokens for API clients. Token fields are empty strings when signed out or
// when a lookup fails. Returns 503 when the auth state could not be loaded.
func (c *Client) SessionInfo(w http.ResponseWriter, r *http.Request) {
	st, ok := StateFromContext(r.Context())
	if !ok {
		ServiceUnavailable(w)
		return
	}

	resp := sessionResponse{Authenticated: st.IsAuthenticated, Subject: st.Subject}
	if st.IsAuthenticated {
		// Independent lookups; a failure on one leaves only that field empty.
		var g errgroup.Group
		g.Go(func() error {
			tok, err := c.IDToken(r.Context(), st)
			if err != nil {
				logIdentityError(r, "id token lookup failed", err)
				return nil
			}
			resp.IDToken = tok
			return nil
		})
		g.Go(func() error {
			tok, err := c.AccessToken(r.Context(), st)
			if err != nil {
				logIdentityError(r, "access token lookup failed", err)
				return nil
			}
			resp.AccessToken = tok
			return nil
		})
		g.Wait()
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// logIdentityError logs a lookup failure; a missing session is expected noise.
func logIdentityError(r *http.Request, msg string, err error) {
	if errors.Is(err, ErrNoSession) || errors.Is(err, ErrNoToken) {
		logDebug(r, msg, "error", err)
		return
	}
	logWarn(r, msg, "error", err)
}
