package web

import (
	"database/sql"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/identity"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/search"
	"github.com/hpungsan/ccpro/internal/session"
)

// sessionCookie carries the session id.
const sessionCookie = "ccpro_session"

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      configPtr
	renderer *Renderer
	sessions *session.Manager
	provider identity.Provider
	engine   *ops.PromotionEngine
	loaded   atomic.Bool
	limiters *limiterSet
}

// SetConfig swaps the configuration used by subsequent requests.
func (h *Handlers) SetConfig(cfg *config.Config) {
	h.cfg.Store(cfg)
}

func (h *Handlers) config() *config.Config {
	return h.cfg.Load()
}

// session returns the caller's session, issuing a new session cookie when
// the request carries none.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *session.Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return h.sessions.Get(c.Value)
		}
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return h.sessions.Get(id)
}

// requireUser returns the signed-in caller's session. Anonymous callers are
// sent to the login page, or get UNAUTHORIZED for htmx and JSON requests.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) (*session.Session, ops.Actor, bool) {
	sess := h.session(w, r)
	st := sess.Store.State()
	if !st.SignedIn() {
		if r.Header.Get("HX-Request") == "true" || wantsJSON(r) {
			h.renderer.renderError(w, r, errors.NewUnauthorized("sign in required"))
		} else {
			http.Redirect(w, r, "/login", http.StatusFound)
		}
		return nil, ops.Actor{}, false
	}
	return sess, ops.ActorFrom(st.Principal), true
}

// pageData builds the common template fields for a session.
func (h *Handlers) pageData(r *http.Request, sess *session.Session, title, nav string) PageData {
	st := sess.Store.State()
	pd := PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		User:    st.Principal,
		Notice:  st.Notice,
	}
	if st.Principal != nil {
		admin, err := ops.IsAdmin(r.Context(), h.db, h.config(), st.Principal.Email)
		pd.IsAdmin = err == nil && admin
	}
	return pd
}

// done finishes a successful form action: JSON callers get payload, htmx
// callers an HX-Redirect, everyone else a notice and a redirect to back.
func (h *Handlers) done(w http.ResponseWriter, r *http.Request, sess *session.Session, back, message string, payload any) {
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, payload)
		return
	}
	if message != "" {
		sess.Store.Dispatch(session.Notified{Notice: session.Notice{Level: session.NoticeSuccess, Message: message}})
	}
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", back)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// fail finishes a failed form action. Browser form posts get an error notice
// and a redirect to back; other callers get the error response.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, sess *session.Session, back string, err error) {
	ccErr := errors.As(err)
	if ccErr.Code == errors.ErrInternal || wantsJSON(r) || r.Header.Get("HX-Request") == "true" {
		h.renderer.renderError(w, r, err)
		return
	}
	sess.Store.Dispatch(session.Notified{Notice: session.Notice{Level: session.NoticeError, Message: ccErr.Message}})
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// HandleDismissNotice handles POST /notice/dismiss.
func (h *Handlers) HandleDismissNotice(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	sess.Store.Dispatch(session.NoticeDismissed{})
	h.done(w, r, sess, safeBack(r, "/search"), "", map[string]any{"dismissed": true})
}

// HandleSearch handles GET /search?q= — keyword search over promotions.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	sess.Store.Dispatch(session.TabChanged{Tab: session.TabSearch})

	if !h.limiters.allow(sess.ID, h.config()) {
		h.renderer.renderError(w, r, errors.NewRateLimited())
		return
	}

	if !h.loaded.Load() || parseBoolParam(r, "refresh") {
		if err := h.engine.Refresh(r.Context()); err != nil {
			h.renderer.renderError(w, r, errors.NewUnavailable(err))
			return
		}
		h.loaded.Store(true)
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	out, err := ops.SearchPromotions(r.Context(), h.engine, ops.SearchPromotionsInput{Query: query})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// A search overtaken by a newer one from the same session renders the
	// newer results.
	sess.Store.Dispatch(session.SearchStarted{Gen: out.Generation, Query: query})
	st := sess.Store.Dispatch(session.SearchResolved{Gen: out.Generation, Results: out.Buckets})

	groups := groupsFromBuckets(st.Results)
	total := 0
	for _, g := range groups {
		total += len(g.Items)
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"query":  st.Query,
			"groups": groups,
			"total":  total,
		})
		return
	}

	data := SearchPageData{
		PageData: h.pageData(r, sess, "Buscar", "search"),
		Query:    st.Query,
		Groups:   groups,
		Total:    total,
		HasQuery: st.Query != "",
	}

	if r.Header.Get("HX-Request") == "true" && r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "search", "results", data)
		return
	}
	h.renderer.renderPage(w, r, "search", data)
}

// HandlePromotion handles GET /promotions/{id} — promotion detail with plans.
func (h *Handlers) HandlePromotion(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("promotion ID is required"))
		return
	}

	p, err := ops.GetPromotion(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, p)
		return
	}

	h.renderer.renderPage(w, r, "promotion", PromotionPageData{
		PageData:  h.pageData(r, sess, p.Title, "search"),
		Promotion: p,
		CopyText:  catalog.PromotionCopyText(*p),
	})
}

// refreshListing reloads the search listing after a catalog change.
func (h *Handlers) refreshListing(r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		h.loaded.Store(false)
		return
	}
	h.loaded.Store(true)
}

func groupsFromBuckets(buckets []search.Bucket[catalog.Promotion]) []ops.PromotionGroup {
	groups := make([]ops.PromotionGroup, 0, len(buckets))
	for _, b := range buckets {
		t := catalog.ItemType(b.Kind)
		groups = append(groups, ops.PromotionGroup{Type: t, Label: t.Label(), Items: b.Items})
	}
	return groups
}

// safeBack returns the form's "back" value when it is a local path.
func safeBack(r *http.Request, fallback string) string {
	back := r.FormValue("back")
	if back == "" || !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") {
		return fallback
	}
	if u, err := url.Parse(back); err != nil || u.Host != "" {
		return fallback
	}
	return back
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
