package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/ccpro/internal/errors"
)

// MaxAnyKeywords is the largest token set an array-contains-any filter accepts.
const MaxAnyKeywords = 30

// Sort fields accepted by Find.
const (
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortTitle     = "title"
)

var sortColumns = map[string]string{
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
	SortTitle:     "title_norm",
}

// ErrUniqueConstraint is returned when an insert reuses an existing document id.
var ErrUniqueConstraint = &errors.CCError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Document is one stored record. Body is the JSON document itself; the other
// fields are indexed columns maintained alongside it.
type Document struct {
	Collection string
	ID         string
	Scope      string
	TitleNorm  string
	Body       json.RawMessage
	Keywords   []string
	CreatedAt  int64
	UpdatedAt  int64
}

// Patch is a partial update. Body is a JSON merge patch applied to the stored
// body. Keywords replaces the token set when non-nil.
type Patch struct {
	Body      json.RawMessage
	TitleNorm *string
	Keywords  []string
}

// Query selects documents of one collection and scope.
type Query struct {
	Collection string
	Scope      string

	// AnyKeywords matches documents whose token set intersects it.
	AnyKeywords []string

	SortBy string // defaults to createdAt
	Desc   bool
	Limit  int    // 0 means no limit
	After  string // cursor returned by a previous page
}

// Page is one page of Find results.
type Page struct {
	Docs       []Document
	HasMore    bool
	NextCursor string
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID. IDs generated by one process sort by creation.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Insert stores a new document, generating its id when empty.
// Timestamps default to now.
func Insert(ctx context.Context, db *sql.DB, doc *Document) error {
	if doc.ID == "" {
		doc.ID = NewID()
	}
	if doc.CreatedAt == 0 {
		doc.CreatedAt = time.Now().Unix()
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = doc.CreatedAt
	}

	return withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, scope, title_norm, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, doc.Collection, doc.ID, doc.Scope, doc.TitleNorm, string(doc.Body), doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return err
		}
		return replaceKeywords(ctx, tx, doc.Collection, doc.ID, doc.Keywords)
	})
}

// Put writes a document under an explicit id, replacing any existing body and
// keyword set. CreatedAt of an existing document is preserved.
func Put(ctx context.Context, db *sql.DB, doc *Document) error {
	if doc.ID == "" {
		return errors.NewInvalidField("id", "is required")
	}
	now := time.Now().Unix()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	return withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, scope, title_norm, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
			  scope = excluded.scope,
			  title_norm = excluded.title_norm,
			  body = excluded.body,
			  updated_at = excluded.updated_at
		`, doc.Collection, doc.ID, doc.Scope, doc.TitleNorm, string(doc.Body), doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM documents WHERE collection = ? AND id = ?`,
			doc.Collection, doc.ID,
		).Scan(&doc.CreatedAt); err != nil {
			return err
		}
		return replaceKeywords(ctx, tx, doc.Collection, doc.ID, doc.Keywords)
	})
}

// GetByID retrieves a document by collection and id.
func GetByID(ctx context.Context, db *sql.DB, collection, id string) (*Document, error) {
	doc, err := getByID(ctx, db, collection, id)
	if err != nil {
		return nil, mapErr(err, collection, id)
	}
	return doc, nil
}

// UpdateByID applies a partial update and returns the stored result.
// Sets updated_at to the current timestamp.
func UpdateByID(ctx context.Context, db *sql.DB, collection, id string, p Patch) (*Document, error) {
	now := time.Now().Unix()
	patch := p.Body
	if len(patch) == 0 {
		patch = json.RawMessage(`{}`)
	}
	var titleNorm sql.NullString
	if p.TitleNorm != nil {
		titleNorm = sql.NullString{String: *p.TitleNorm, Valid: true}
	}

	var doc *Document
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET body = json_patch(body, ?),
			    title_norm = COALESCE(?, title_norm),
			    updated_at = ?
			WHERE collection = ? AND id = ?
		`, string(patch), titleNorm, now, collection, id)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return sql.ErrNoRows
		}
		if p.Keywords != nil {
			if err := replaceKeywords(ctx, tx, collection, id, p.Keywords); err != nil {
				return err
			}
		}
		doc, err = getByID(ctx, tx, collection, id)
		return err
	})
	if err != nil {
		return nil, mapErr(err, collection, id)
	}
	return doc, nil
}

// DeleteByID removes a document and its keyword set.
func DeleteByID(ctx context.Context, db *sql.DB, collection, id string) error {
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return sql.ErrNoRows
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM document_keywords WHERE collection = ? AND doc_id = ?`, collection, id)
		return err
	})
	return mapErr(err, collection, id)
}

// TitleExists reports whether a document in collection and scope has the
// given normalized title. excludeID skips one document (the one being renamed).
func TitleExists(ctx context.Context, db *sql.DB, collection, scope, titleNorm, excludeID string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM documents
		WHERE collection = ? AND scope = ? AND title_norm = ? AND id != ?
		LIMIT 1
	`, collection, scope, titleNorm, excludeID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err, collection, "")
	}
	return true, nil
}

// Count returns the number of documents in a collection and scope.
func Count(ctx context.Context, db *sql.DB, collection, scope string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ? AND scope = ?`,
		collection, scope,
	).Scan(&n)
	if err != nil {
		return 0, mapErr(err, collection, "")
	}
	return n, nil
}

// KeywordIndexExists reports whether a keyword filter may be combined with
// the given sort field on collection.
func KeywordIndexExists(ctx context.Context, db *sql.DB, collection, sortBy string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM keyword_indexes WHERE collection = ? AND sort_field = ?`,
		collection, sortBy,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err, collection, "")
	}
	return true, nil
}

// DeclareKeywordIndex allows keyword filters on collection sorted by sortBy.
func DeclareKeywordIndex(ctx context.Context, db *sql.DB, collection, sortBy string) error {
	if _, ok := sortColumns[sortBy]; !ok {
		return errors.NewInvalidField("sort", fmt.Sprintf("unknown sort field %q", sortBy))
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO keyword_indexes (collection, sort_field) VALUES (?, ?)`,
		collection, sortBy,
	)
	return mapErr(err, collection, "")
}

// Find returns one page of documents matching q.
// A keyword filter combined with a sort field that has no declared keyword
// index, or with more than MaxAnyKeywords tokens, fails with UNSUPPORTED_QUERY.
func Find(ctx context.Context, db *sql.DB, q Query) (*Page, error) {
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortCreatedAt
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, errors.NewInvalidField("sort", fmt.Sprintf("unknown sort field %q", sortBy))
	}

	if len(q.AnyKeywords) > 0 {
		if len(q.AnyKeywords) > MaxAnyKeywords {
			return nil, errors.NewUnsupportedQuery(fmt.Sprintf("at most %d keywords per filter, got %d", MaxAnyKeywords, len(q.AnyKeywords)))
		}
		indexed, err := KeywordIndexExists(ctx, db, q.Collection, sortBy)
		if err != nil {
			return nil, err
		}
		if !indexed {
			return nil, errors.NewUnsupportedQuery(fmt.Sprintf("no keyword index on %s sorted by %s", q.Collection, sortBy))
		}
	}

	where := []string{"collection = ?", "scope = ?"}
	args := []any{q.Collection, q.Scope}

	if len(q.AnyKeywords) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.AnyKeywords)), ",")
		where = append(where, "id IN (SELECT doc_id FROM document_keywords WHERE collection = ? AND keyword IN ("+placeholders+"))")
		args = append(args, q.Collection)
		for _, kw := range q.AnyKeywords {
			args = append(args, kw)
		}
	}

	cmp, dir := ">", "ASC"
	if q.Desc {
		cmp, dir = "<", "DESC"
	}

	if q.After != "" {
		c, err := decodeCursor(q.After)
		if err != nil || c.Sort != sortBy {
			return nil, errors.NewInvalidField("cursor", "invalid or does not match sort")
		}
		var value any = c.Value
		if sortBy != SortTitle {
			n, err := strconv.ParseInt(c.Value, 10, 64)
			if err != nil {
				return nil, errors.NewInvalidField("cursor", "invalid")
			}
			value = n
		}
		where = append(where, fmt.Sprintf("(%s %s ? OR (%s = ? AND id %s ?))", column, cmp, column, cmp))
		args = append(args, value, value, c.ID)
	}

	query := fmt.Sprintf(`
		SELECT collection, id, scope, title_norm, body, created_at, updated_at
		FROM documents
		WHERE %s
		ORDER BY %s %s, id %s
	`, strings.Join(where, " AND "), column, dir, dir)

	if q.Limit > 0 {
		// Fetch one extra row to detect HasMore
		query += " LIMIT ?"
		args = append(args, q.Limit+1)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, q.Collection, "")
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapErr(err, q.Collection, "")
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, q.Collection, "")
	}

	page := &Page{Docs: docs}
	if q.Limit > 0 && len(docs) > q.Limit {
		page.Docs = docs[:q.Limit]
		page.HasMore = true
		last := page.Docs[q.Limit-1]
		page.NextCursor = encodeCursor(sortBy, last)
	}

	if err := loadKeywords(ctx, db, q.Collection, page.Docs); err != nil {
		return nil, err
	}

	return page, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getByID(ctx context.Context, q querier, collection, id string) (*Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, id, scope, title_norm, body, created_at, updated_at
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}
	docs := []Document{*doc}
	if err := loadKeywords(ctx, q, collection, docs); err != nil {
		return nil, err
	}
	return &docs[0], nil
}

// loadKeywords fills the keyword sets of docs in place.
func loadKeywords(ctx context.Context, q querier, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	pos := make(map[string]int, len(docs))
	args := []any{collection}
	for i, d := range docs {
		pos[d.ID] = i
		docs[i].Keywords = []string{}
		args = append(args, d.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(docs)), ",")

	rows, err := q.QueryContext(ctx, `
		SELECT doc_id, keyword FROM document_keywords
		WHERE collection = ? AND doc_id IN (`+placeholders+`)
		ORDER BY doc_id, keyword
	`, args...)
	if err != nil {
		return mapErr(err, collection, "")
	}
	defer rows.Close()

	for rows.Next() {
		var id, kw string
		if err := rows.Scan(&id, &kw); err != nil {
			return mapErr(err, collection, "")
		}
		i := pos[id]
		docs[i].Keywords = append(docs[i].Keywords, kw)
	}
	return mapErr(rows.Err(), collection, "")
}

func replaceKeywords(ctx context.Context, tx *sql.Tx, collection, id string, keywords []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_keywords WHERE collection = ? AND doc_id = ?`,
		collection, id,
	); err != nil {
		return err
	}
	for _, kw := range keywords {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO document_keywords (collection, doc_id, keyword) VALUES (?, ?, ?)`,
			collection, id, kw,
		); err != nil {
			return err
		}
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	var (
		d    Document
		body string
	)
	if err := s.Scan(&d.Collection, &d.ID, &d.Scope, &d.TitleNorm, &body, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Body = json.RawMessage(body)
	return &d, nil
}

// withTx runs fn in a transaction, committing on success.
// Errors are mapped to CCErrors unless fn already returned one.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err, "", "")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		var ccErr *errors.CCError
		if stderrors.As(err, &ccErr) || err == sql.ErrNoRows {
			return err
		}
		return mapErr(err, "", "")
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err, "", "")
	}
	return nil
}

// mapErr converts driver errors into the CCError taxonomy.
// Busy, locked and closed databases are transient (UNAVAILABLE).
func mapErr(err error, collection, id string) error {
	if err == nil {
		return nil
	}
	var ccErr *errors.CCError
	if stderrors.As(err, &ccErr) {
		return err
	}
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return errors.NewNotFound(collection, id)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewCancelled("query")
	case isUnavailableError(err):
		return errors.NewUnavailable(err)
	}
	return errors.NewInternal(err)
}

func isUnavailableError(err error) bool {
	if stderrors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "unable to open database")
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type cursor struct {
	Sort  string `json:"s"`
	Value string `json:"v"`
	ID    string `json:"i"`
}

func encodeCursor(sortBy string, d Document) string {
	c := cursor{Sort: sortBy, ID: d.ID}
	switch sortBy {
	case SortUpdatedAt:
		c.Value = strconv.FormatInt(d.UpdatedAt, 10)
	case SortTitle:
		c.Value = d.TitleNorm
	default:
		c.Value = strconv.FormatInt(d.CreatedAt, 10)
	}
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.ID == "" {
		return c, stderrors.New("cursor missing id")
	}
	return c, nil
}
