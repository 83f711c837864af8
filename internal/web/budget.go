package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

// HandleBudget handles GET /budget — the working budget and saved budgets.
func (h *Handlers) HandleBudget(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	sess.Store.Dispatch(session.TabChanged{Tab: session.TabBudget})

	working := ops.ShowBudget(h.sessions, sess.ID)
	saved, err := ops.ListSavedBudgets(r.Context(), h.db, h.config(), actor, ops.ListSavedBudgetsInput{
		Limit:  parseIntParam(r, "limit", 0),
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"budget": working,
			"saved":  saved,
		})
		return
	}

	pending := ""
	if m := sess.Deletes(catalog.CollectionBudgets); m.Phase() == session.DeletePending {
		pending = m.Target()
	}

	h.renderer.renderPage(w, r, "budget", BudgetPageData{
		PageData: h.pageData(r, sess, "Presupuesto", "budget"),
		Budget:   working,
		Saved:    saved.Items,
		Pending:  pending,
	})
}

// HandleBudgetAdd handles POST /budget/items — adds a manual line.
func (h *Handlers) HandleBudgetAdd(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	price, err := formDecimal(r, "unit_price")
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	qty, err := formInt(r, "quantity", 1)
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}

	out, err := ops.AddBudgetItem(h.sessions, sess.ID, ops.AddBudgetItemInput{
		Name:      r.FormValue("name"),
		UnitPrice: price,
		Quantity:  qty,
	})
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.done(w, r, sess, "/budget", "Ítem agregado", out)
}

// HandleBudgetAddPlan handles POST /budget/plans — adds a promotion plan.
func (h *Handlers) HandleBudgetAddPlan(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	back := safeBack(r, "/budget")
	out, err := ops.AddPlanToBudget(r.Context(), h.db, h.sessions, sess.ID, ops.AddPlanInput{
		PromotionID: r.FormValue("promotion_id"),
		PlanName:    r.FormValue("plan"),
	})
	if err != nil {
		h.fail(w, r, sess, back, err)
		return
	}
	h.done(w, r, sess, back, "Plan agregado al presupuesto", out)
}

// HandleBudgetUpdate handles POST /budget/items/{index}. Absent fields are left unchanged.
func (h *Handlers) HandleBudgetUpdate(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	input := ops.UpdateBudgetItemInput{Index: index}
	if _, ok := r.PostForm["name"]; ok {
		v := r.PostFormValue("name")
		input.Name = &v
	}
	if r.PostFormValue("unit_price") != "" {
		price, err := formDecimal(r, "unit_price")
		if err != nil {
			h.fail(w, r, sess, "/budget", err)
			return
		}
		input.UnitPrice = &price
	}
	if r.PostFormValue("quantity") != "" {
		qty, err := formInt(r, "quantity", 1)
		if err != nil {
			h.fail(w, r, sess, "/budget", err)
			return
		}
		input.Quantity = &qty
	}

	out, err := ops.UpdateBudgetItem(h.sessions, sess.ID, input)
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.done(w, r, sess, "/budget", "Ítem actualizado", out)
}

// HandleBudgetRemove handles POST /budget/items/{index}/remove.
func (h *Handlers) HandleBudgetRemove(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	out, err := ops.RemoveBudgetItem(h.sessions, sess.ID, index)
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.done(w, r, sess, "/budget", "Ítem eliminado", out)
}

// HandleBudgetClear handles POST /budget/clear.
func (h *Handlers) HandleBudgetClear(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	out, err := ops.ClearBudget(h.sessions, sess.ID)
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.done(w, r, sess, "/budget", "Presupuesto vaciado", out)
}

// HandleBudgetSave handles POST /budget/save.
func (h *Handlers) HandleBudgetSave(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	out, err := ops.SaveBudget(r.Context(), h.db, h.sessions, sess.ID, actor, ops.SaveBudgetInput{
		ID:   r.FormValue("id"),
		Name: r.FormValue("name"),
	})
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.done(w, r, sess, "/budget", "Presupuesto guardado: "+out.Name, out)
}

// HandleBudgetLoad handles POST /budget/saved/{id}/load — appends a saved
// budget's lines to the working budget.
func (h *Handlers) HandleBudgetLoad(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	out, err := ops.LoadSavedBudget(r.Context(), h.db, h.sessions, sess.ID, actor, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.done(w, r, sess, "/budget", "Presupuesto cargado", out)
}

// HandleSavedDeleteRequest handles POST /budget/saved/{id}/delete.
func (h *Handlers) HandleSavedDeleteRequest(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := ops.GetSavedBudget(r.Context(), h.db, actor, id); err != nil {
		h.fail(w, r, sess, "/budget", err)
		return
	}
	h.requestDelete(w, r, sess, catalog.CollectionBudgets, id, "/budget")
}

// HandleSavedDeleteConfirm handles POST /budget/saved/{id}/delete/confirm.
func (h *Handlers) HandleSavedDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.confirmDelete(w, r, sess, catalog.CollectionBudgets, r.PathValue("id"), "/budget", "Presupuesto eliminado",
		func(ctx context.Context, id string) error {
			_, err := ops.DeleteSavedBudget(ctx, h.db, actor, id)
			return err
		})
}

// HandleSavedDeleteCancel handles POST /budget/saved/{id}/delete/cancel.
func (h *Handlers) HandleSavedDeleteCancel(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.cancelDelete(w, r, sess, catalog.CollectionBudgets, "/budget")
}

// formDecimal parses a decimal form field. A comma is accepted as the
// decimal separator.
func formDecimal(r *http.Request, name string) (decimal.Decimal, error) {
	s := strings.TrimSpace(r.FormValue(name))
	if s == "" {
		return decimal.Zero, errors.NewInvalidField(name, "is required")
	}
	d, err := ops.ParseAmount(s)
	if err != nil {
		return decimal.Zero, errors.NewInvalidField(name, "must be a number")
	}
	return d, nil
}

// formInt parses an integer form field with a default for blank values.
func formInt(r *http.Request, name string, defaultVal int) (int, error) {
	s := strings.TrimSpace(r.FormValue(name))
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidField(name, "must be an integer")
	}
	return v, nil
}

func pathIndex(r *http.Request) (int, error) {
	v, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, errors.NewInvalidField("index", "must be an integer")
	}
	return v, nil
}
