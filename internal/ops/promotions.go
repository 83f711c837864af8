package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/clipboard"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
)

// StorePromotionInput contains parameters for the StorePromotion operation.
type StorePromotionInput struct {
	Title       string           // required
	Description string           // required
	Type        catalog.ItemType // default: plan
	ImageURL    string           // required for image
	Price       decimal.Decimal  // required for price
	Plans       []catalog.Plan   // at least one for plan
	Benefits    []catalog.Benefit
}

// StorePromotionOutput contains the result of the StorePromotion operation.
type StorePromotionOutput struct {
	ID string `json:"id"`
}

// UpdatePromotionInput contains parameters for the UpdatePromotion operation.
// Nil fields are left unchanged.
type UpdatePromotionInput struct {
	ID          string
	Title       *string
	Description *string
	Type        *catalog.ItemType
	ImageURL    *string
	Price       *decimal.Decimal
	Plans       *[]catalog.Plan
	Benefits    *[]catalog.Benefit
}

// ListPromotionsInput contains parameters for the ListPromotions operation.
type ListPromotionsInput struct {
	Limit  int
	Cursor string
}

// ListPromotionsOutput contains the result of the ListPromotions operation.
type ListPromotionsOutput struct {
	Items      []catalog.Promotion `json:"items"`
	Pagination Pagination          `json:"pagination"`
	Sort       string              `json:"sort"`
}

// DeleteOutput contains the result of a delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// StorePromotion creates a promotion. Admin only.
func StorePromotion(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input StorePromotionInput) (*StorePromotionOutput, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}

	p := catalog.Promotion{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Type:        input.Type,
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Price:       input.Price,
		Plans:       input.Plans,
		Benefits:    input.Benefits,
		CreatedBy:   actor.UserID,
	}
	if p.Type == "" {
		p.Type = catalog.TypePlan
	}
	if err := validatePromotion(p); err != nil {
		return nil, err
	}
	if err := checkPromotionTitle(ctx, database, p.Title, ""); err != nil {
		return nil, err
	}

	doc, err := promotionDocument(p)
	if err != nil {
		return nil, err
	}
	if err := db.Insert(ctx, database, doc); err != nil {
		return nil, err
	}
	return &StorePromotionOutput{ID: doc.ID}, nil
}

// UpdatePromotion applies a partial update to a promotion and recomputes its
// keywords. Admin only.
func UpdatePromotion(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input UpdatePromotionInput) (*catalog.Promotion, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ID) == "" {
		return nil, errors.NewInvalidField("id", "is required")
	}

	p, err := GetPromotion(ctx, database, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		p.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		p.Description = strings.TrimSpace(*input.Description)
	}
	if input.Type != nil {
		p.Type = *input.Type
	}
	if input.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.Price != nil {
		p.Price = *input.Price
	}
	if input.Plans != nil {
		p.Plans = *input.Plans
	}
	if input.Benefits != nil {
		p.Benefits = *input.Benefits
	}

	if err := validatePromotion(*p); err != nil {
		return nil, err
	}
	if input.Title != nil {
		if err := checkPromotionTitle(ctx, database, p.Title, p.ID); err != nil {
			return nil, err
		}
	}

	doc, err := promotionDocument(*p)
	if err != nil {
		return nil, err
	}
	doc.ID = p.ID
	doc.CreatedAt = p.CreatedAt
	if err := db.Put(ctx, database, doc); err != nil {
		return nil, err
	}

	updated, err := promotionFromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeletePromotion removes a promotion. Admin only.
func DeletePromotion(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, id string) (*DeleteOutput, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewInvalidField("id", "is required")
	}
	if err := db.DeleteByID(ctx, database, catalog.CollectionPromotions, id); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}

// GetPromotion retrieves a promotion by id.
func GetPromotion(ctx context.Context, database *sql.DB, id string) (*catalog.Promotion, error) {
	doc, err := db.GetByID(ctx, database, catalog.CollectionPromotions, id)
	if err != nil {
		return nil, err
	}
	p, err := promotionFromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPromotions returns promotions newest first.
func ListPromotions(ctx context.Context, database *sql.DB, cfg *config.Config, input ListPromotionsInput) (*ListPromotionsOutput, error) {
	limit := pageLimit(input.Limit, cfg)

	page, err := db.Find(ctx, database, db.Query{
		Collection: catalog.CollectionPromotions,
		SortBy:     db.SortCreatedAt,
		Desc:       true,
		Limit:      limit,
		After:      input.Cursor,
	})
	if err != nil {
		return nil, err
	}
	total, err := db.Count(ctx, database, catalog.CollectionPromotions, "")
	if err != nil {
		return nil, err
	}
	items, err := promotionsFromDocuments(page.Docs)
	if err != nil {
		return nil, err
	}

	return &ListPromotionsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
			Total:      total,
		},
		Sort: "created_at_desc",
	}, nil
}

func validatePromotion(p catalog.Promotion) error {
	if p.Title == "" {
		return errors.NewInvalidField("title", "is required")
	}
	if p.Description == "" {
		return errors.NewInvalidField("description", "is required")
	}
	if !p.Type.Valid() {
		return errors.NewInvalidField("type", "must be one of: plan, text, image, price")
	}

	switch p.Type {
	case catalog.TypePlan:
		if len(p.Plans) == 0 {
			return errors.NewInvalidField("plans", "at least one plan is required")
		}
	case catalog.TypeImage:
		if p.ImageURL == "" {
			return errors.NewInvalidField("image_url", "is required for image promotions")
		}
	case catalog.TypePrice:
		if !p.Price.IsPositive() {
			return errors.NewInvalidField("price", "must be greater than zero")
		}
	}

	seen := make(map[string]bool, len(p.Plans))
	for i, plan := range p.Plans {
		field := fmt.Sprintf("plans[%d]", i)
		name := catalog.Normalize(plan.Name)
		if name == "" {
			return errors.NewInvalidField(field+".name", "is required")
		}
		if seen[name] {
			return errors.NewInvalidField(field+".name", fmt.Sprintf("duplicate plan %q", plan.Name))
		}
		seen[name] = true
		if !plan.FinalPrice.IsPositive() {
			return errors.NewInvalidField(field+".final_price", "must be greater than zero")
		}
		if plan.ListPrice.IsNegative() || plan.MonthlyDiscount.IsNegative() {
			return errors.NewInvalidField(field, "prices must not be negative")
		}
	}

	for i, b := range p.Benefits {
		if strings.TrimSpace(b.Title) == "" {
			return errors.NewInvalidField(fmt.Sprintf("benefits[%d].title", i), "is required")
		}
	}
	return nil
}

// checkPromotionTitle rejects a title already used by another promotion.
func checkPromotionTitle(ctx context.Context, database *sql.DB, title, excludeID string) error {
	exists, err := db.TitleExists(ctx, database, catalog.CollectionPromotions, "", catalog.Normalize(title), excludeID)
	if err != nil {
		return err
	}
	if exists {
		return errors.NewNameAlreadyExists(catalog.CollectionPromotions, title)
	}
	return nil
}

func promotionDocument(p catalog.Promotion) (*db.Document, error) {
	body, err := catalog.EncodePromotion(p)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &db.Document{
		Collection: catalog.CollectionPromotions,
		ID:         p.ID,
		TitleNorm:  catalog.Normalize(p.Title),
		Body:       body,
		Keywords:   catalog.PromotionKeywords(p.Title, p.Description),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

func promotionFromDocument(d db.Document) (catalog.Promotion, error) {
	p, err := catalog.DecodePromotion(d.ID, d.Body, d.Keywords, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return catalog.Promotion{}, errors.NewInternal(fmt.Errorf("decode promotion %s: %w", d.ID, err))
	}
	return p, nil
}

func promotionsFromDocuments(docs []db.Document) ([]catalog.Promotion, error) {
	items := make([]catalog.Promotion, 0, len(docs))
	for _, d := range docs {
		p, err := promotionFromDocument(d)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

// CopyPromotion renders a promotion summary and copies it.
func CopyPromotion(ctx context.Context, database *sql.DB, sink clipboard.Sink, id string) (*CopyOutput, error) {
	p, err := GetPromotion(ctx, database, id)
	if err != nil {
		return nil, err
	}
	text := catalog.PromotionCopyText(*p)
	return &CopyOutput{Text: text, Copied: clipboard.Copy(sink, text)}, nil
}
