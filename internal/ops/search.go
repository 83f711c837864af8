package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/search"
)

// PromotionEngine searches the promotion catalog.
type PromotionEngine = search.Engine[catalog.Promotion]

// promotionSource reads promotions from the document store, newest first.
type promotionSource struct {
	database *sql.DB
}

func (s promotionSource) Match(ctx context.Context, tokens []string) ([]catalog.Promotion, error) {
	page, err := db.Find(ctx, s.database, db.Query{
		Collection:  catalog.CollectionPromotions,
		AnyKeywords: tokens,
		SortBy:      db.SortCreatedAt,
		Desc:        true,
	})
	if err != nil {
		return nil, err
	}
	return promotionsFromDocuments(page.Docs)
}

func (s promotionSource) ListAll(ctx context.Context) ([]catalog.Promotion, error) {
	page, err := db.Find(ctx, s.database, db.Query{
		Collection: catalog.CollectionPromotions,
		SortBy:     db.SortCreatedAt,
		Desc:       true,
	})
	if err != nil {
		return nil, err
	}
	return promotionsFromDocuments(page.Docs)
}

func promotionKey(p catalog.Promotion) string { return p.ID }

func promotionFields(p catalog.Promotion) (string, string) { return p.Title, p.Description }

func promotionKind(p catalog.Promotion) string { return string(p.Type) }

// NewPromotionEngine creates a search engine over the promotion catalog.
// The listing is empty until Refresh is called.
func NewPromotionEngine(database *sql.DB) *PromotionEngine {
	return search.NewEngine[catalog.Promotion](promotionSource{database: database}, promotionKey, promotionFields).
		WithBatchSize(db.MaxAnyKeywords)
}

// LoadPromotionEngine creates a promotion engine with its listing loaded.
func LoadPromotionEngine(ctx context.Context, database *sql.DB) (*PromotionEngine, error) {
	e := NewPromotionEngine(database)
	if err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// SearchPromotionsInput contains parameters for the SearchPromotions operation.
type SearchPromotionsInput struct {
	Query string // blank returns the full listing
}

// PromotionGroup is one type section of a search result.
type PromotionGroup struct {
	Type  catalog.ItemType    `json:"type"`
	Label string              `json:"label"`
	Items []catalog.Promotion `json:"items"`
}

// SearchPromotionsOutput contains the result of the SearchPromotions operation.
type SearchPromotionsOutput struct {
	Query         string           `json:"query"`
	Generation    uint64           `json:"generation"`
	Groups        []PromotionGroup `json:"groups"`
	Total         int              `json:"total"`
	RemoteMatches int              `json:"remote_matches"`
	LocalMatches  int              `json:"local_matches"`

	Buckets []search.Bucket[catalog.Promotion] `json:"-"`
}

// SearchPromotions runs the keyword match and the local substring filter,
// merges them and groups the result by promotion type.
func SearchPromotions(ctx context.Context, engine *PromotionEngine, input SearchPromotionsInput) (*SearchPromotionsOutput, error) {
	res, err := engine.Search(ctx, input.Query)
	if err != nil {
		return nil, err
	}

	buckets := search.Classify(res.Items, promotionKind)
	groups := make([]PromotionGroup, 0, len(buckets))
	for _, b := range buckets {
		t := catalog.ItemType(b.Kind)
		groups = append(groups, PromotionGroup{Type: t, Label: t.Label(), Items: b.Items})
	}

	return &SearchPromotionsOutput{
		Query:         input.Query,
		Generation:    res.Gen,
		Groups:        groups,
		Total:         len(res.Items),
		RemoteMatches: res.Remote,
		LocalMatches:  res.Local,
		Buckets:       buckets,
	}, nil
}
