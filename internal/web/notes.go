package web

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

// HandleNotes handles GET /notes — the caller's notes, sorted and optionally filtered.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	sess.Store.Dispatch(session.TabChanged{Tab: session.TabNotes})

	q := r.URL.Query()
	input := ops.ListNotesInput{
		Sort:   q.Get("sort"),
		Limit:  parseIntParam(r, "limit", 0),
		Cursor: q.Get("cursor"),
		Query:  q.Get("q"),
	}

	result, err := ops.ListNotes(r.Context(), h.db, h.config(), actor, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	pending := ""
	if m := sess.Deletes(catalog.CollectionNotes); m.Phase() == session.DeletePending {
		pending = m.Target()
	}

	h.renderer.renderPage(w, r, "notes", NotesPageData{
		PageData:   h.pageData(r, sess, "Notas", "notes"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Sort:       result.Sort,
		Query:      input.Query,
		Pending:    pending,
	})
}

// HandleNoteCreate handles POST /notes.
func (h *Handlers) HandleNoteCreate(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	out, err := ops.StoreNote(r.Context(), h.db, actor, ops.StoreNoteInput{
		Title:   r.FormValue("title"),
		Content: r.FormValue("content"),
	})
	if err != nil {
		h.fail(w, r, sess, "/notes", err)
		return
	}
	h.done(w, r, sess, "/notes/"+out.ID, "Nota guardada", out)
}

// HandleNote handles GET /notes/{id} — a note with its markdown rendered.
func (h *Handlers) HandleNote(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("note ID is required"))
		return
	}

	note, err := ops.GetNote(r.Context(), h.db, actor, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, note)
		return
	}

	h.renderer.renderPage(w, r, "note", NotePageData{
		PageData:     h.pageData(r, sess, note.Title, "notes"),
		Note:         note,
		RenderedHTML: renderMarkdown(note.Content),
	})
}

// HandleNoteUpdate handles POST /notes/{id}. Absent form fields are left unchanged.
func (h *Handlers) HandleNoteUpdate(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	id := r.PathValue("id")
	input := ops.UpdateNoteInput{ID: id}
	if _, ok := r.PostForm["title"]; ok {
		v := r.PostFormValue("title")
		input.Title = &v
	}
	if _, ok := r.PostForm["content"]; ok {
		v := r.PostFormValue("content")
		input.Content = &v
	}

	note, err := ops.UpdateNote(r.Context(), h.db, actor, input)
	if err != nil {
		h.fail(w, r, sess, "/notes/"+url.PathEscape(id), err)
		return
	}
	h.done(w, r, sess, "/notes/"+url.PathEscape(note.ID), "Nota actualizada", note)
}

// HandleNoteDeleteRequest handles POST /notes/{id}/delete — asks for confirmation.
func (h *Handlers) HandleNoteDeleteRequest(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	// Resolve ownership before asking for confirmation.
	if _, err := ops.GetNote(r.Context(), h.db, actor, id); err != nil {
		h.fail(w, r, sess, "/notes", err)
		return
	}
	h.requestDelete(w, r, sess, catalog.CollectionNotes, id, "/notes")
}

// HandleNoteDeleteConfirm handles POST /notes/{id}/delete/confirm.
func (h *Handlers) HandleNoteDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	sess, actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.confirmDelete(w, r, sess, catalog.CollectionNotes, r.PathValue("id"), "/notes", "Nota eliminada",
		func(ctx context.Context, id string) error {
			_, err := ops.DeleteNote(ctx, h.db, actor, id)
			return err
		})
}

// HandleNoteDeleteCancel handles POST /notes/{id}/delete/cancel.
func (h *Handlers) HandleNoteDeleteCancel(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.cancelDelete(w, r, sess, catalog.CollectionNotes, "/notes")
}

// requestDelete moves the collection's delete machine to pending for id.
func (h *Handlers) requestDelete(w http.ResponseWriter, r *http.Request, sess *session.Session, collection, id, back string) {
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("ID is required"))
		return
	}
	m := sess.Deletes(collection)
	if err := m.Request(id); err != nil {
		h.fail(w, r, sess, back, errors.NewInvalidRequest(err.Error()))
		return
	}
	h.done(w, r, sess, back, "", map[string]any{"id": id, "phase": m.Phase().String()})
}

// confirmDelete runs del for the pending id and reports the outcome.
func (h *Handlers) confirmDelete(w http.ResponseWriter, r *http.Request, sess *session.Session, collection, id, back, message string, del func(context.Context, string) error) {
	err := sess.Deletes(collection).Confirm(r.Context(), id, del)
	if stderrors.Is(err, session.ErrNothingToConfirm) {
		h.fail(w, r, sess, back, errors.NewInvalidRequest(err.Error()))
		return
	}
	if err != nil {
		h.fail(w, r, sess, back, err)
		return
	}
	h.done(w, r, sess, back, message, map[string]any{"deleted": true, "id": id})
}

// cancelDelete abandons the pending delete of a collection.
func (h *Handlers) cancelDelete(w http.ResponseWriter, r *http.Request, sess *session.Session, collection, back string) {
	m := sess.Deletes(collection)
	m.Cancel()
	h.done(w, r, sess, back, "", map[string]any{"phase": m.Phase().String()})
}
