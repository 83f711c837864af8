package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/clipboard"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/search"
)

// StoreNoteInput contains parameters for the StoreNote operation.
type StoreNoteInput struct {
	Title   string // required
	Content string
}

// StoreNoteOutput contains the result of the StoreNote operation.
type StoreNoteOutput struct {
	ID string `json:"id"`
}

// UpdateNoteInput contains parameters for the UpdateNote operation.
// Nil fields are left unchanged.
type UpdateNoteInput struct {
	ID      string
	Title   *string
	Content *string
}

// ListNotesInput contains parameters for the ListNotes operation.
type ListNotesInput struct {
	Sort   string // createdAt (default), updatedAt or title
	Limit  int
	Cursor string
	Query  string // optional search term; results are not paginated
}

// ListNotesOutput contains the result of the ListNotes operation.
type ListNotesOutput struct {
	Items      []catalog.Note `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"`
	Query      string         `json:"query,omitempty"`
}

// CopyOutput contains the result of a copy-to-clipboard operation.
// Copied is false when the clipboard could not be written; Text is always set.
type CopyOutput struct {
	Text   string `json:"text"`
	Copied bool   `json:"copied"`
}

// StoreNote creates a note owned by the actor.
func StoreNote(ctx context.Context, database *sql.DB, actor Actor, input StoreNoteInput) (*StoreNoteOutput, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.NewInvalidField("title", "is required")
	}

	n := catalog.NewNote(actor.UserID, title, input.Content, now())
	doc, err := noteDocument(n)
	if err != nil {
		return nil, err
	}
	if err := db.Insert(ctx, database, doc); err != nil {
		return nil, err
	}
	return &StoreNoteOutput{ID: doc.ID}, nil
}

// GetNote retrieves one of the actor's notes.
func GetNote(ctx context.Context, database *sql.DB, actor Actor, id string) (*catalog.Note, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	doc, err := db.GetByID(ctx, database, catalog.CollectionNotes, id)
	if err != nil {
		return nil, err
	}
	if doc.Scope != actor.UserID {
		return nil, errors.NewUnauthorized("note belongs to another user")
	}
	n, err := noteFromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNote edits one of the actor's notes and recomputes its keywords.
func UpdateNote(ctx context.Context, database *sql.DB, actor Actor, input UpdateNoteInput) (*catalog.Note, error) {
	if input.Title == nil && input.Content == nil {
		return nil, errors.NewInvalidRequest("at least one of title or content is required")
	}
	n, err := GetNote(ctx, database, actor, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		n.Title = strings.TrimSpace(*input.Title)
		if n.Title == "" {
			return nil, errors.NewInvalidField("title", "must not be empty")
		}
	}
	if input.Content != nil {
		n.Content = *input.Content
	}

	body, err := catalog.EncodeNote(*n)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	titleNorm := catalog.Normalize(n.Title)
	doc, err := db.UpdateByID(ctx, database, catalog.CollectionNotes, n.ID, db.Patch{
		Body:      body,
		TitleNorm: &titleNorm,
		Keywords:  catalog.NoteKeywords(n.Title, n.Content),
	})
	if err != nil {
		return nil, err
	}

	updated, err := noteFromDocument(*doc)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteNote removes one of the actor's notes.
func DeleteNote(ctx context.Context, database *sql.DB, actor Actor, id string) (*DeleteOutput, error) {
	if _, err := GetNote(ctx, database, actor, id); err != nil {
		return nil, err
	}
	if err := db.DeleteByID(ctx, database, catalog.CollectionNotes, id); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}

// ListNotes returns the actor's notes. Dates sort newest first and titles
// sort alphabetically. With a query, the keyword match and the substring
// filter are merged and the whole result is returned in one page.
func ListNotes(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input ListNotesInput) (*ListNotesOutput, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	sortBy := input.Sort
	if sortBy == "" {
		sortBy = db.SortCreatedAt
	}
	if sortBy != db.SortCreatedAt && sortBy != db.SortUpdatedAt && sortBy != db.SortTitle {
		return nil, errors.NewInvalidField("sort", "must be one of: createdAt, updatedAt, title")
	}

	if strings.TrimSpace(input.Query) != "" {
		return searchNotes(ctx, database, actor, sortBy, input.Query)
	}

	limit := pageLimit(input.Limit, cfg)
	page, err := db.Find(ctx, database, db.Query{
		Collection: catalog.CollectionNotes,
		Scope:      actor.UserID,
		SortBy:     sortBy,
		Desc:       sortBy != db.SortTitle,
		Limit:      limit,
		After:      input.Cursor,
	})
	if err != nil {
		return nil, err
	}
	total, err := db.Count(ctx, database, catalog.CollectionNotes, actor.UserID)
	if err != nil {
		return nil, err
	}
	items, err := notesFromDocuments(page.Docs)
	if err != nil {
		return nil, err
	}

	return &ListNotesOutput{
		Items: items,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
			Total:      total,
		},
		Sort: sortBy,
	}, nil
}

func searchNotes(ctx context.Context, database *sql.DB, actor Actor, sortBy, query string) (*ListNotesOutput, error) {
	engine := search.NewEngine[catalog.Note](
		noteSource{database: database, userID: actor.UserID, sortBy: sortBy},
		func(n catalog.Note) string { return n.ID },
		func(n catalog.Note) (string, string) { return n.Title, n.Content },
	).WithBatchSize(db.MaxAnyKeywords)
	if err := engine.Refresh(ctx); err != nil {
		return nil, err
	}
	res, err := engine.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	return &ListNotesOutput{
		Items: res.Items,
		Pagination: Pagination{
			Limit: len(res.Items),
			Total: len(res.Items),
		},
		Sort:  sortBy,
		Query: query,
	}, nil
}

// CopyNote renders one of the actor's notes as plain text and copies it.
func CopyNote(ctx context.Context, database *sql.DB, actor Actor, sink clipboard.Sink, id string) (*CopyOutput, error) {
	n, err := GetNote(ctx, database, actor, id)
	if err != nil {
		return nil, err
	}
	text := catalog.NoteCopyText(*n)
	return &CopyOutput{Text: text, Copied: clipboard.Copy(sink, text)}, nil
}

// noteSource reads one user's notes in a fixed order.
type noteSource struct {
	database *sql.DB
	userID   string
	sortBy   string
}

func (s noteSource) query() db.Query {
	return db.Query{
		Collection: catalog.CollectionNotes,
		Scope:      s.userID,
		SortBy:     s.sortBy,
		Desc:       s.sortBy != db.SortTitle,
	}
}

func (s noteSource) Match(ctx context.Context, tokens []string) ([]catalog.Note, error) {
	q := s.query()
	q.AnyKeywords = tokens
	page, err := db.Find(ctx, s.database, q)
	if err != nil {
		return nil, err
	}
	return notesFromDocuments(page.Docs)
}

func (s noteSource) ListAll(ctx context.Context) ([]catalog.Note, error) {
	page, err := db.Find(ctx, s.database, s.query())
	if err != nil {
		return nil, err
	}
	return notesFromDocuments(page.Docs)
}

func noteDocument(n catalog.Note) (*db.Document, error) {
	body, err := catalog.EncodeNote(n)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &db.Document{
		Collection: catalog.CollectionNotes,
		ID:         n.ID,
		Scope:      n.UserID,
		TitleNorm:  catalog.Normalize(n.Title),
		Body:       body,
		Keywords:   n.Keywords,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}, nil
}

func noteFromDocument(d db.Document) (catalog.Note, error) {
	n, err := catalog.DecodeNote(d.ID, d.Body, d.Keywords, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return catalog.Note{}, errors.NewInternal(fmt.Errorf("decode note %s: %w", d.ID, err))
	}
	return n, nil
}

func notesFromDocuments(docs []db.Document) ([]catalog.Note, error) {
	items := make([]catalog.Note, 0, len(docs))
	for _, d := range docs {
		n, err := noteFromDocument(d)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, nil
}
