// pages.go -- Page handlers: Home, Login, Protected and the sign-in callback.
//
// Pages read the AuthState injected by auth.LoadAuthState and render embedded
// pongo2 templates. Identity lookups run under the request context; when the
// client has gone away by the time they settle, nothing is rendered.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/MGallo-Code/gatekeep/internal/auth"
	"github.com/MGallo-Code/gatekeep/internal/oauth"
	"github.com/flosch/pongo2/v6"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames are compiled at startup so a broken template fails NewPages, not a request.
var pageNames = []string{"home.html", "login.html", "protected.html", "callback_error.html"}

// Identity is the part of the identity client pages depend on.
// Satisfied by *auth.Client.
type Identity interface {
	IDToken(ctx context.Context, st *auth.AuthState) (string, error)
	AccessToken(ctx context.Context, st *auth.AuthState) (string, error)
	User(ctx context.Context, st *auth.AuthState) (*oauth.UserInfo, error)
	HandleCallback(w http.ResponseWriter, r *http.Request) (string, error)
}

// Pages renders the app's pages.
type Pages struct {
	identity Identity
	restore  func(originalURI string) string
	set      *pongo2.TemplateSet
}

// NewPages compiles the embedded templates.
// restore maps the original URI recorded at sign-in to the post-callback redirect target.
func NewPages(identity Identity, restore func(originalURI string) string) (*Pages, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("opening templates: %w", err)
	}
	set := pongo2.NewSet("pages", pongo2.NewFSLoader(sub))
	for _, name := range pageNames {
		if _, err := set.FromCache(name); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", name, err)
		}
	}
	if restore == nil {
		restore = func(string) string { return "/" }
	}
	return &Pages{identity: identity, restore: restore, set: set}, nil
}

// Home handles GET / -- static welcome text for every visitor.
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "home.html", pongo2.Context{})
}

// Login handles GET /login.
// Without auth state nothing is rendered. Signed out shows the Login link.
// Signed in fetches both tokens independently and shows them with a Logout form.
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := auth.StateFromContext(ctx)
	data := pongo2.Context{"ready": ok}
	// No state renders an empty page, signed out renders the Login link
	if !ok || !st.IsAuthenticated {
		data["authenticated"] = false
		p.render(w, r, http.StatusOK, "login.html", data)
		return
	}

	// Fetch both tokens concurrently; a failure blanks only its own field
	var idToken, accessToken string
	var g errgroup.Group
	g.Go(func() error {
		tok, err := p.identity.IDToken(ctx, st)
		if err != nil {
			logFetchError(r, st, "fetching id token", err)
			return nil
		}
		idToken = tok
		return nil
	})
	g.Go(func() error {
		tok, err := p.identity.AccessToken(ctx, st)
		if err != nil {
			logFetchError(r, st, "fetching access token", err)
			return nil
		}
		accessToken = tok
		return nil
	})
	g.Wait()

	// Client went away mid-fetch, nothing to render
	if ctx.Err() != nil {
		logDebug(r, "client gone before tokens settled", "error", ctx.Err())
		return
	}

	// Empty tokens fall back to the template's placeholders
	data["authenticated"] = true
	data["id_token"] = idToken
	data["access_token"] = accessToken
	data["csrf_token"] = st.CSRFToken()
	p.render(w, r, http.StatusOK, "login.html", data)
}

// Protected handles GET /protected.
// Signed out (or unknown state) shows the sign-in call to action.
// Signed in fetches the user's profile; a failed fetch renders an empty page.
func (p *Pages) Protected(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := auth.StateFromContext(ctx)
	if !ok || !st.IsAuthenticated {
		p.render(w, r, http.StatusOK, "protected.html", pongo2.Context{"authenticated": false})
		return
	}

	user, err := p.identity.User(ctx, st)
	if err != nil {
		logFetchError(r, st, "fetching user info", err)
	}
	if ctx.Err() != nil {
		logDebug(r, "client gone before user info settled", "error", ctx.Err())
		return
	}

	data := pongo2.Context{"authenticated": true}
	if user != nil {
		data["user"] = user
	}
	p.render(w, r, http.StatusOK, "protected.html", data)
}

// LoginCallback handles GET /callback -- completes sign-in and sends the browser
// back to where it started. Failures render the callback error page with 401.
func (p *Pages) LoginCallback(w http.ResponseWriter, r *http.Request) {
	originalURI, err := p.identity.HandleCallback(w, r)
	if err != nil {
		logWarn(r, "sign-in callback failed", "error", err)
		reason := "Please try again."
		if errors.Is(err, auth.ErrProviderDenied) {
			reason = "The identity provider denied the request."
		}
		p.render(w, r, http.StatusUnauthorized, "callback_error.html", pongo2.Context{"reason": reason})
		return
	}
	http.Redirect(w, r, p.restore(originalURI), http.StatusFound)
}

// render executes the named template into a buffer so a template error never
// leaves a half-written page.
func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, name string, data pongo2.Context) {
	tpl, err := p.set.FromCache(name)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(data, &buf); err != nil {
		renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "rendering page failed", "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// logFetchError logs an identity lookup failure. The page shows "no value".
func logFetchError(r *http.Request, st *auth.AuthState, msg string, err error) {
	if errors.Is(err, auth.ErrNoSession) || errors.Is(err, auth.ErrNoToken) || errors.Is(err, context.Canceled) {
		logDebug(r, msg, "session_id", st.SessionID, "error", err)
		return
	}
	logWarn(r, msg, "session_id", st.SessionID, "error", err)
}
