package web

import (
	"crypto/subtle"
	stderrors "errors"
	"net/http"

	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/identity"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

// keyOAuthState holds the pending OAuth state value in the session scratch.
const keyOAuthState = "oauth_state"

var errNotConfigured = stderrors.New("sign-in is not configured")

// configurable is implemented by providers that can report missing credentials.
type configurable interface {
	Configured() bool
}

func (h *Handlers) providerReady() bool {
	if h.provider == nil {
		return false
	}
	if c, ok := h.provider.(configurable); ok {
		return c.Configured()
	}
	return true
}

// redirectURL is the OAuth callback URL for the host the browser used.
func redirectURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + identity.CallbackPath
}

// HandleLogin handles GET /login — the sign-in page.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess.Store.State().SignedIn() {
		http.Redirect(w, r, "/search", http.StatusFound)
		return
	}
	h.renderer.renderPage(w, r, "login", LoginPageData{
		PageData:   h.pageData(r, sess, "Ingresar", ""),
		Configured: h.providerReady(),
	})
}

// HandleAuthStart handles GET /auth/start — redirects to the provider's consent page.
func (h *Handlers) HandleAuthStart(w http.ResponseWriter, r *http.Request) {
	if !h.providerReady() {
		h.renderer.renderError(w, r, errors.NewUnavailable(errNotConfigured))
		return
	}
	sess := h.session(w, r)

	state, err := identity.NewState()
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}
	if err := h.sessions.Scratch().Set(sess.ID, keyOAuthState, state); err != nil {
		h.renderer.renderError(w, r, errors.NewUnavailable(err))
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state, redirectURL(r)), http.StatusFound)
}

// HandleAuthCallback handles GET /callback — completes sign-in.
func (h *Handlers) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !h.providerReady() {
		h.renderer.renderError(w, r, errors.NewUnavailable(errNotConfigured))
		return
	}
	sess := h.session(w, r)
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		h.renderer.renderError(w, r, errors.NewUnauthorized("sign-in cancelled: "+e))
		return
	}

	want, found, err := h.sessions.Scratch().Get(sess.ID, keyOAuthState)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewUnavailable(err))
		return
	}
	got := q.Get("state")
	if !found || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		h.renderer.renderError(w, r, errors.NewInvalidField("state", "does not match the sign-in request"))
		return
	}
	_ = h.sessions.Scratch().Delete(sess.ID, keyOAuthState)

	principal, err := identity.SignIn(r.Context(), h.provider, ops.AllowList(h.db, h.config()), q.Get("code"), redirectURL(r))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := h.sessions.SignIn(sess, principal); err != nil {
		h.renderer.renderError(w, r, errors.NewUnavailable(err))
		return
	}
	sess.Store.Dispatch(session.Notified{Notice: session.Notice{
		Level:   session.NoticeSuccess,
		Message: "Bienvenido, " + principal.DisplayName,
	}})

	http.Redirect(w, r, "/search", http.StatusFound)
}

// HandleLogout handles POST /logout.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if err := h.sessions.SignOut(sess); err != nil {
		h.renderer.renderError(w, r, errors.NewUnavailable(err))
		return
	}
	h.limiters.forget(sess.ID)
	h.done(w, r, sess, "/login", "", map[string]any{"signed_out": true})
}
