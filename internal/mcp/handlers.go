package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
// Budget tools act on the CLI's current scratch session and the principal
// signed in through `ccpro login`.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	scratch *session.Scratch
	engine  *ops.PromotionEngine
	loaded  atomic.Bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, scratch *session.Scratch) *Handlers {
	return &Handlers{db: db, cfg: cfg, scratch: scratch, engine: ops.NewPromotionEngine(db)}
}

// Request types for each tool

// PromotionSearchRequest represents the arguments for promotion_search.
type PromotionSearchRequest struct {
	Query   string `json:"query,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
}

// PageRequest represents the paging arguments shared by list tools.
type PageRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// NoteStoreRequest represents the arguments for note_store.
type NoteStoreRequest struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// NoteUpdateRequest represents the arguments for note_update.
type NoteUpdateRequest struct {
	ID      string  `json:"id"`
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IDRequest represents tools addressed by a single id.
type IDRequest struct {
	ID string `json:"id"`
}

// NoteListRequest represents the arguments for note_list.
type NoteListRequest struct {
	Sort   string `json:"sort,omitempty"`
	Query  string `json:"query,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// BudgetAddRequest represents the arguments for budget_add.
type BudgetAddRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity,omitempty"`
}

// BudgetAddPlanRequest represents the arguments for budget_add_plan.
type BudgetAddPlanRequest struct {
	PromotionID string `json:"promotion_id"`
	Plan        string `json:"plan,omitempty"`
}

// BudgetRemoveRequest represents the arguments for budget_remove.
type BudgetRemoveRequest struct {
	Index *int `json:"index"`
}

// BudgetSaveRequest represents the arguments for budget_save.
type BudgetSaveRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// current returns the CLI session id and its signed-in actor.
func (h *Handlers) current() (string, ops.Actor, error) {
	sid, err := h.scratch.CurrentSession()
	if err != nil {
		return "", ops.Actor{}, errors.NewUnavailable(fmt.Errorf("scratch session: %w", err))
	}
	p, err := h.scratch.LoadPrincipal(sid)
	if err != nil {
		return "", ops.Actor{}, errors.NewUnavailable(fmt.Errorf("load principal: %w", err))
	}
	return sid, ops.ActorFrom(p), nil
}

// Handler implementations

// HandlePromotionSearch handles the promotion_search tool call.
func (h *Handlers) HandlePromotionSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromotionSearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.Refresh || !h.loaded.Load() {
		if err := h.engine.Refresh(ctx); err != nil {
			return errorResult(err), nil
		}
		h.loaded.Store(true)
	}

	result, err := ops.SearchPromotions(ctx, h.engine, ops.SearchPromotionsInput{Query: input.Query})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePromotionList handles the promotion_list tool call.
func (h *Handlers) HandlePromotionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListPromotions(ctx, h.db, h.cfg, ops.ListPromotionsInput{
		Limit:  input.Limit,
		Cursor: input.Cursor,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNoteStore handles the note_store tool call.
func (h *Handlers) HandleNoteStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NoteStoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	_, actor, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.StoreNote(ctx, h.db, actor, ops.StoreNoteInput{
		Title:   input.Title,
		Content: input.Content,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNoteUpdate handles the note_update tool call.
func (h *Handlers) HandleNoteUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NoteUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	_, actor, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.UpdateNote(ctx, h.db, actor, ops.UpdateNoteInput{
		ID:      input.ID,
		Title:   input.Title,
		Content: input.Content,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNoteDelete handles the note_delete tool call.
func (h *Handlers) HandleNoteDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	_, actor, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.DeleteNote(ctx, h.db, actor, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNoteList handles the note_list tool call.
func (h *Handlers) HandleNoteList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NoteListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	_, actor, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListNotes(ctx, h.db, h.cfg, actor, ops.ListNotesInput{
		Sort:   input.Sort,
		Query:  input.Query,
		Limit:  input.Limit,
		Cursor: input.Cursor,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBudgetAdd handles the budget_add tool call.
func (h *Handlers) HandleBudgetAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BudgetAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	sid, _, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.AddBudgetItem(h.scratch, sid, ops.AddBudgetItemInput{
		Name:      input.Name,
		UnitPrice: input.UnitPrice,
		Quantity:  input.Quantity,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBudgetAddPlan handles the budget_add_plan tool call.
func (h *Handlers) HandleBudgetAddPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BudgetAddPlanRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	sid, _, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.AddPlanToBudget(ctx, h.db, h.scratch, sid, ops.AddPlanInput{
		PromotionID: input.PromotionID,
		PlanName:    input.Plan,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBudgetRemove handles the budget_remove tool call.
func (h *Handlers) HandleBudgetRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BudgetRemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Index == nil {
		return errorResult(errors.NewInvalidField("index", "is required")), nil
	}
	sid, _, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.RemoveBudgetItem(h.scratch, sid, *input.Index)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBudgetShow handles the budget_show tool call.
func (h *Handlers) HandleBudgetShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sid, _, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ops.ShowBudget(h.scratch, sid))
}

// HandleBudgetSave handles the budget_save tool call.
func (h *Handlers) HandleBudgetSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BudgetSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	sid, actor, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SaveBudget(ctx, h.db, h.scratch, sid, actor, ops.SaveBudgetInput{
		ID:   input.ID,
		Name: input.Name,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBudgetSaved handles the budget_saved tool call.
func (h *Handlers) HandleBudgetSaved(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	_, actor, err := h.current()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListSavedBudgets(ctx, h.db, h.cfg, actor, ops.ListSavedBudgetsInput{
		Limit:  input.Limit,
		Cursor: input.Cursor,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	ccErr := errors.As(err)
	errorObj := map[string]any{
		"code":    ccErr.Code,
		"message": ccErr.Message,
		"status":  ccErr.Status,
	}
	if ccErr.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if ccErr.Details != nil {
		errorObj["details"] = ccErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
