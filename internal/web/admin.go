package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

// requireAdmin is requireUser plus the admin role check.
func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) (*session.Session, ops.Actor, bool) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return nil, ops.Actor{}, false
	}
	admin, err := ops.IsAdmin(r.Context(), h.db, h.config(), actor.Email)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return nil, ops.Actor{}, false
	}
	if !admin {
		h.renderer.renderError(w, r, errors.NewUnauthorized("admin role required"))
		return nil, ops.Actor{}, false
	}
	return sess, actor, true
}

// HandleAdmin handles GET /admin — promotion and allow-list management.
func (h *Handlers) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	sess.Store.Dispatch(session.TabChanged{Tab: session.TabAdmin})

	promos, err := ops.ListPromotions(r.Context(), h.db, h.config(), ops.ListPromotionsInput{
		Limit:  ops.MaxListLimit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	users, err := ops.ListAuthorizedUsers(r.Context(), h.db, h.config(), actor, ops.ListUsersInput{Limit: ops.MaxListLimit})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"promotions": promos,
			"users":      users,
		})
		return
	}

	pending := ""
	if m := sess.Deletes(catalog.CollectionPromotions); m.Phase() == session.DeletePending {
		pending = m.Target()
	}

	h.renderer.renderPage(w, r, "admin", AdminPageData{
		PageData:   h.pageData(r, sess, "Administración", "admin"),
		Promotions: promos.Items,
		Users:      users.Items,
		Types:      catalog.ItemTypes,
		Pending:    pending,
	})
}

// HandlePromotionCreate handles POST /admin/promotions.
func (h *Handlers) HandlePromotionCreate(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	input := ops.StorePromotionInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Type:        catalog.ItemType(r.FormValue("type")),
		ImageURL:    r.FormValue("image_url"),
	}
	if strings.TrimSpace(r.FormValue("price")) != "" {
		price, err := formDecimal(r, "price")
		if err != nil {
			h.fail(w, r, sess, "/admin", err)
			return
		}
		input.Price = price
	}
	plans, err := ops.ParsePlans(ops.SplitLines(r.FormValue("plans")))
	if err != nil {
		h.fail(w, r, sess, "/admin", err)
		return
	}
	input.Plans = plans
	input.Benefits = ops.ParseBenefits(ops.SplitLines(r.FormValue("benefits")))

	out, err := ops.StorePromotion(r.Context(), h.db, h.config(), actor, input)
	if err != nil {
		h.fail(w, r, sess, "/admin", err)
		return
	}
	h.refreshListing(r)
	h.done(w, r, sess, "/admin", "Promoción creada", out)
}

// HandlePromotionDeleteRequest handles POST /admin/promotions/{id}/delete.
func (h *Handlers) HandlePromotionDeleteRequest(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := ops.GetPromotion(r.Context(), h.db, id); err != nil {
		h.fail(w, r, sess, "/admin", err)
		return
	}
	h.requestDelete(w, r, sess, catalog.CollectionPromotions, id, "/admin")
}

// HandlePromotionDeleteConfirm handles POST /admin/promotions/{id}/delete/confirm.
func (h *Handlers) HandlePromotionDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	h.confirmDelete(w, r, sess, catalog.CollectionPromotions, r.PathValue("id"), "/admin", "Promoción eliminada",
		func(ctx context.Context, id string) error {
			if _, err := ops.DeletePromotion(ctx, h.db, h.config(), actor, id); err != nil {
				return err
			}
			h.refreshListing(r)
			return nil
		})
}

// HandlePromotionDeleteCancel handles POST /admin/promotions/{id}/delete/cancel.
func (h *Handlers) HandlePromotionDeleteCancel(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	h.cancelDelete(w, r, sess, catalog.CollectionPromotions, "/admin")
}

// HandleUserAllow handles POST /admin/users — adds an email to the allow-list.
func (h *Handlers) HandleUserAllow(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	out, err := ops.AllowUser(r.Context(), h.db, h.config(), actor, ops.AllowUserInput{
		Email: r.FormValue("email"),
		Role:  r.FormValue("role"),
		Name:  r.FormValue("name"),
	})
	if err != nil {
		h.fail(w, r, sess, "/admin", err)
		return
	}
	h.done(w, r, sess, "/admin", "Usuario autorizado: "+out.Email, out)
}

// HandleUserRevoke handles POST /admin/users/{email}/revoke.
func (h *Handlers) HandleUserRevoke(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	out, err := ops.RevokeUser(r.Context(), h.db, h.config(), actor, r.PathValue("email"))
	if err != nil {
		h.fail(w, r, sess, "/admin", err)
		return
	}
	h.done(w, r, sess, "/admin", "Acceso revocado: "+out.Email, out)
}
