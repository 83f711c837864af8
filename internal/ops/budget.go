package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/budget"
	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/clipboard"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
)

// BudgetStore holds the working budget of each session.
// UpdateBudget must be durable before it returns.
type BudgetStore interface {
	LoadBudget(sessionID string) []budget.LineItem
	// UpdateBudget replaces the budget with fn's result atomically per
	// session. An error from fn aborts the update and is returned as is.
	UpdateBudget(sessionID string, fn func([]budget.LineItem) ([]budget.LineItem, error)) ([]budget.LineItem, error)
}

// AddBudgetItemInput contains parameters for the AddBudgetItem operation.
type AddBudgetItemInput struct {
	Name      string          // required
	UnitPrice decimal.Decimal // > 0
	Quantity  int             // default: 1
}

// AddPlanInput contains parameters for the AddPlanToBudget operation.
type AddPlanInput struct {
	PromotionID string // required
	PlanName    string // default: the promotion's only plan
}

// UpdateBudgetItemInput contains parameters for the UpdateBudgetItem operation.
// Nil fields are left unchanged.
type UpdateBudgetItemInput struct {
	Index     int
	Name      *string
	UnitPrice *decimal.Decimal
	Quantity  *int
}

// BudgetOutput is the working budget after an operation.
type BudgetOutput struct {
	Items []budget.LineItem `json:"items"`
	Count int               `json:"count"`
	Total decimal.Decimal   `json:"total"`
	Text  string            `json:"text"`
}

// SaveBudgetInput contains parameters for the SaveBudget operation.
type SaveBudgetInput struct {
	ID   string // optional: overwrite one of the actor's saved budgets
	Name string // default: "Presupuesto <date>"
}

// SaveBudgetOutput contains the result of the SaveBudget operation.
type SaveBudgetOutput struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ListSavedBudgetsInput contains parameters for the ListSavedBudgets operation.
type ListSavedBudgetsInput struct {
	Limit  int
	Cursor string
}

// ListSavedBudgetsOutput contains the result of the ListSavedBudgets operation.
type ListSavedBudgetsOutput struct {
	Items      []catalog.SavedBudget `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

func budgetOutput(items []budget.LineItem) *BudgetOutput {
	if items == nil {
		items = []budget.LineItem{}
	}
	return &BudgetOutput{
		Items: items,
		Count: len(items),
		Total: budget.Total(items),
		Text:  budget.Render(items),
	}
}

// mapBudgetErr converts line item validation errors into INVALID_REQUEST.
func mapBudgetErr(err error) error {
	switch {
	case stderrors.Is(err, budget.ErrNameRequired):
		return errors.NewInvalidField("name", "is required")
	case stderrors.Is(err, budget.ErrInvalidPrice):
		return errors.NewInvalidField("unit_price", "must be greater than zero")
	case stderrors.Is(err, budget.ErrInvalidQuantity):
		return errors.NewInvalidField("quantity", "must be at least 1")
	case stderrors.Is(err, budget.ErrIndexOutOfRange):
		return errors.NewInvalidField("index", "no budget line at that position")
	}
	return err
}

// commitBudget applies fn to the working budget. Errors raised by fn are
// returned mapped; store failures become UNAVAILABLE.
func commitBudget(store BudgetStore, sessionID string, fn func([]budget.LineItem) ([]budget.LineItem, error)) (*BudgetOutput, error) {
	var fnErr error
	items, err := store.UpdateBudget(sessionID, func(current []budget.LineItem) ([]budget.LineItem, error) {
		updated, err := fn(current)
		fnErr = err
		return updated, err
	})
	if fnErr != nil {
		return nil, mapBudgetErr(fnErr)
	}
	if err != nil {
		return nil, errors.NewUnavailable(fmt.Errorf("save working budget: %w", err))
	}
	return budgetOutput(items), nil
}

// appendLine returns an update that adds li after the current lines.
func appendLine(li budget.LineItem) func([]budget.LineItem) ([]budget.LineItem, error) {
	return func(current []budget.LineItem) ([]budget.LineItem, error) {
		return budget.Append(current, li), nil
	}
}

// ShowBudget returns the working budget with its total and rendered text.
func ShowBudget(store BudgetStore, sessionID string) *BudgetOutput {
	return budgetOutput(store.LoadBudget(sessionID))
}

// AddBudgetItem appends a manually entered line.
func AddBudgetItem(store BudgetStore, sessionID string, input AddBudgetItemInput) (*BudgetOutput, error) {
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	li, err := budget.NewLineItem(input.Name, input.UnitPrice, qty)
	if err != nil {
		return nil, mapBudgetErr(err)
	}
	return commitBudget(store, sessionID, appendLine(li))
}

// AddPlanToBudget appends one unit of a promotion plan at its final price.
func AddPlanToBudget(ctx context.Context, database *sql.DB, store BudgetStore, sessionID string, input AddPlanInput) (*BudgetOutput, error) {
	if strings.TrimSpace(input.PromotionID) == "" {
		return nil, errors.NewInvalidField("promotion_id", "is required")
	}
	p, err := GetPromotion(ctx, database, input.PromotionID)
	if err != nil {
		return nil, err
	}

	var plan catalog.Plan
	switch {
	case strings.TrimSpace(input.PlanName) != "":
		var ok bool
		plan, ok = catalog.FindPlan(*p, input.PlanName)
		if !ok {
			return nil, errors.NewNotFound("plans", input.PlanName)
		}
	case len(p.Plans) == 1:
		plan = p.Plans[0]
	case len(p.Plans) == 0:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("promotion %q has no plans", p.Title))
	default:
		return nil, errors.NewInvalidField("plan", "is required when the promotion has several plans")
	}

	li := budget.FromPlan(p.ID, p.Title, plan.Name, plan.FinalPrice)
	return commitBudget(store, sessionID, appendLine(li))
}

// UpdateBudgetItem edits one line of the working budget.
func UpdateBudgetItem(store BudgetStore, sessionID string, input UpdateBudgetItemInput) (*BudgetOutput, error) {
	return commitBudget(store, sessionID, func(items []budget.LineItem) ([]budget.LineItem, error) {
		if input.Index < 0 || input.Index >= len(items) {
			return nil, budget.ErrIndexOutOfRange
		}

		current := items[input.Index]
		name, price, qty := current.Name, current.UnitPrice, current.Quantity
		if input.Name != nil {
			name = *input.Name
		}
		if input.UnitPrice != nil {
			price = *input.UnitPrice
		}
		if input.Quantity != nil {
			qty = *input.Quantity
		}

		li, err := budget.NewLineItem(name, price, qty)
		if err != nil {
			return nil, err
		}
		li.SourceID = current.SourceID
		li.PlanName = current.PlanName

		return budget.ReplaceAt(items, input.Index, li)
	})
}

// RemoveBudgetItem drops one line of the working budget.
func RemoveBudgetItem(store BudgetStore, sessionID string, index int) (*BudgetOutput, error) {
	return commitBudget(store, sessionID, func(items []budget.LineItem) ([]budget.LineItem, error) {
		return budget.RemoveAt(items, index)
	})
}

// ClearBudget empties the working budget.
func ClearBudget(store BudgetStore, sessionID string) (*BudgetOutput, error) {
	return commitBudget(store, sessionID, func([]budget.LineItem) ([]budget.LineItem, error) {
		return []budget.LineItem{}, nil
	})
}

// CopyBudget renders the working budget and copies it. A failed copy is
// reported in the output, never as an error.
func CopyBudget(store BudgetStore, sessionID string, sink clipboard.Sink) *CopyOutput {
	text := budget.Render(store.LoadBudget(sessionID))
	return &CopyOutput{Text: text, Copied: clipboard.Copy(sink, text)}
}

// SaveBudget persists the working budget to the actor's saved budgets.
func SaveBudget(ctx context.Context, database *sql.DB, store BudgetStore, sessionID string, actor Actor, input SaveBudgetInput) (*SaveBudgetOutput, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	items := store.LoadBudget(sessionID)
	if len(items) == 0 {
		return nil, errors.NewInvalidRequest("budget is empty")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Presupuesto " + time.Now().Format("2006-01-02 15:04")
	}

	sb := catalog.SavedBudget{
		ID:     strings.TrimSpace(input.ID),
		UserID: actor.UserID,
		Name:   name,
		Items:  items,
		Total:  budget.Total(items),
	}
	if sb.ID != "" {
		existing, err := GetSavedBudget(ctx, database, actor, sb.ID)
		if err != nil {
			return nil, err
		}
		sb.CreatedAt = existing.CreatedAt
	}

	body, err := catalog.EncodeSavedBudget(sb)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	doc := &db.Document{
		Collection: catalog.CollectionBudgets,
		ID:         sb.ID,
		Scope:      actor.UserID,
		TitleNorm:  catalog.Normalize(name),
		Body:       body,
		CreatedAt:  sb.CreatedAt,
	}
	if doc.ID == "" {
		err = db.Insert(ctx, database, doc)
	} else {
		err = db.Put(ctx, database, doc)
	}
	if err != nil {
		return nil, err
	}

	return &SaveBudgetOutput{ID: doc.ID, Name: name, Count: len(items), Total: sb.Total}, nil
}

// GetSavedBudget retrieves one of the actor's saved budgets.
func GetSavedBudget(ctx context.Context, database *sql.DB, actor Actor, id string) (*catalog.SavedBudget, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	doc, err := db.GetByID(ctx, database, catalog.CollectionBudgets, id)
	if err != nil {
		return nil, err
	}
	if doc.Scope != actor.UserID {
		return nil, errors.NewUnauthorized("budget belongs to another user")
	}
	sb, err := catalog.DecodeSavedBudget(doc.ID, doc.Body, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode budget %s: %w", doc.ID, err))
	}
	return &sb, nil
}

// LoadSavedBudget carries a saved budget's lines over into the working
// budget, after the lines already there.
func LoadSavedBudget(ctx context.Context, database *sql.DB, store BudgetStore, sessionID string, actor Actor, id string) (*BudgetOutput, error) {
	sb, err := GetSavedBudget(ctx, database, actor, id)
	if err != nil {
		return nil, err
	}
	return commitBudget(store, sessionID, func(current []budget.LineItem) ([]budget.LineItem, error) {
		return budget.Combine(current, sb.Items), nil
	})
}

// ListSavedBudgets returns the actor's saved budgets, newest first.
func ListSavedBudgets(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input ListSavedBudgetsInput) (*ListSavedBudgetsOutput, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	limit := pageLimit(input.Limit, cfg)

	page, err := db.Find(ctx, database, db.Query{
		Collection: catalog.CollectionBudgets,
		Scope:      actor.UserID,
		SortBy:     db.SortCreatedAt,
		Desc:       true,
		Limit:      limit,
		After:      input.Cursor,
	})
	if err != nil {
		return nil, err
	}
	total, err := db.Count(ctx, database, catalog.CollectionBudgets, actor.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]catalog.SavedBudget, 0, len(page.Docs))
	for _, d := range page.Docs {
		sb, err := catalog.DecodeSavedBudget(d.ID, d.Body, d.CreatedAt, d.UpdatedAt)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("decode budget %s: %w", d.ID, err))
		}
		items = append(items, sb)
	}

	return &ListSavedBudgetsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
			Total:      total,
		},
	}, nil
}

// DeleteSavedBudget removes one of the actor's saved budgets.
func DeleteSavedBudget(ctx context.Context, database *sql.DB, actor Actor, id string) (*DeleteOutput, error) {
	if _, err := GetSavedBudget(ctx, database, actor, id); err != nil {
		return nil, err
	}
	if err := db.DeleteByID(ctx, database, catalog.CollectionBudgets, id); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}
