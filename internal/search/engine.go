package search

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/keywords"
)

// Source is the store a search engine reads from.
type Source[T any] interface {
	// Match returns the items whose token set intersects tokens.
	Match(ctx context.Context, tokens []string) ([]T, error)

	// ListAll returns the full listing used by the local filter.
	ListAll(ctx context.Context) ([]T, error)
}

// Fields extracts the searchable title and body of an item.
type Fields[T any] func(T) (title, body string)

// Result is the outcome of one Search call.
type Result[T any] struct {
	Gen    uint64 `json:"generation"`
	Query  string `json:"query"`
	Items  []T    `json:"items"`
	Remote int    `json:"remote_matches"`
	Local  int    `json:"local_matches"`
}

// Engine runs the remote token-set match and the local substring filter for
// a query and merges them, remote results first.
type Engine[T any] struct {
	source Source[T]
	key    func(T) string
	fields Fields[T]

	batch  int

	listing atomic.Pointer[[]T]
	gen     atomic.Uint64
}

// NewEngine creates an engine with an empty listing. Call Refresh to load it.
func NewEngine[T any](source Source[T], key func(T) string, fields Fields[T]) *Engine[T] {
	e := &Engine[T]{source: source, key: key, fields: fields}
	empty := []T{}
	e.listing.Store(&empty)
	return e
}

// WithBatchSize caps the number of tokens sent to one Source.Match call.
// Longer token sets are split into batches whose results are combined by key.
// A non-positive n sends every token in one call.
func (e *Engine[T]) WithBatchSize(n int) *Engine[T] {
	e.batch = n
	return e
}

// Refresh replaces the cached listing with a fresh one from the source.
// The previous listing stays in place if the source fails.
func (e *Engine[T]) Refresh(ctx context.Context) error {
	items, err := e.source.ListAll(ctx)
	if err != nil {
		return err
	}
	e.SetListing(items)
	return nil
}

// SetListing replaces the cached listing. The slice must not be modified afterwards.
func (e *Engine[T]) SetListing(items []T) {
	if items == nil {
		items = []T{}
	}
	e.listing.Store(&items)
}

// Listing returns the cached listing.
func (e *Engine[T]) Listing() []T {
	return *e.listing.Load()
}

// IsCurrent reports whether gen is the most recent search generation.
// Results of superseded searches should be discarded.
func (e *Engine[T]) IsCurrent(gen uint64) bool {
	return e.gen.Load() == gen
}

// Search runs one query. A blank query returns the cached listing without
// touching the store. Otherwise the remote match and the local filter run
// concurrently; a store that cannot execute the token query contributes no
// results instead of failing the search.
func (e *Engine[T]) Search(ctx context.Context, raw string) (*Result[T], error) {
	gen := e.gen.Add(1)
	listing := e.Listing()

	if strings.TrimSpace(raw) == "" {
		return &Result[T]{Gen: gen, Query: raw, Items: listing}, nil
	}

	tokens := keywords.Query(raw)
	var remote, local []T

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(tokens) == 0 {
			return nil
		}
		items, err := e.match(gctx, tokens)
		if errors.Is(err, errors.ErrUnsupportedQuery) {
			slog.Debug("keyword match unsupported, using local results only", "query", raw, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		remote = items
		return nil
	})
	g.Go(func() error {
		local = Filter(listing, raw, e.fields)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result[T]{
		Gen:    gen,
		Query:  raw,
		Items:  Merge(remote, local, e.key),
		Remote: len(remote),
		Local:  len(local),
	}, nil
}

// match runs the token query batch by batch, earlier batches first.
func (e *Engine[T]) match(ctx context.Context, tokens []string) ([]T, error) {
	if e.batch <= 0 || len(tokens) <= e.batch {
		return e.source.Match(ctx, tokens)
	}
	var out []T
	for start := 0; start < len(tokens); start += e.batch {
		end := min(start+e.batch, len(tokens))
		items, err := e.source.Match(ctx, tokens[start:end])
		if err != nil {
			return nil, err
		}
		out = Merge(out, items, e.key)
	}
	return out, nil
}
