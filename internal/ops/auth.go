package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/identity"
)

// AllowUserInput contains parameters for the AllowUser operation.
type AllowUserInput struct {
	Email string // required
	Role  string // default: user
	Name  string
}

// AllowUserOutput contains the result of the AllowUser operation.
type AllowUserOutput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ListUsersInput contains parameters for the ListAuthorizedUsers operation.
type ListUsersInput struct {
	Limit  int
	Cursor string
}

// ListUsersOutput contains the result of the ListAuthorizedUsers operation.
type ListUsersOutput struct {
	Items      []catalog.AuthorizedUser `json:"items"`
	Pagination Pagination               `json:"pagination"`
}

// RevokeUserOutput contains the result of the RevokeUser operation.
type RevokeUserOutput struct {
	Revoked bool   `json:"revoked"`
	Email   string `json:"email"`
}

// IsAuthorized reports whether email may sign in. Configured admin emails are
// always authorized.
func IsAuthorized(ctx context.Context, database *sql.DB, cfg *config.Config, email string) (bool, error) {
	email = catalog.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	if cfg != nil && cfg.IsAdminEmail(email) {
		return true, nil
	}
	_, err := db.GetByID(ctx, database, catalog.CollectionAuthorizedUsers, email)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsAdmin reports whether email may manage promotions and the allow-list.
func IsAdmin(ctx context.Context, database *sql.DB, cfg *config.Config, email string) (bool, error) {
	email = catalog.NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	if cfg != nil && cfg.IsAdminEmail(email) {
		return true, nil
	}
	doc, err := db.GetByID(ctx, database, catalog.CollectionAuthorizedUsers, email)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	u, err := catalog.DecodeAuthorizedUser(doc.ID, doc.Body, doc.CreatedAt)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return u.Role == catalog.RoleAdmin, nil
}

// AllowList adapts the authorized_users collection for identity.SignIn.
func AllowList(database *sql.DB, cfg *config.Config) identity.AllowList {
	return identity.AllowListFunc(func(ctx context.Context, email string) (bool, error) {
		return IsAuthorized(ctx, database, cfg, email)
	})
}

func requireAdmin(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor) error {
	if err := requireSignedIn(actor); err != nil {
		return err
	}
	ok, err := IsAdmin(ctx, database, cfg, actor.Email)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewUnauthorized("admin role required")
	}
	return nil
}

// AllowUser adds an email to the allow-list.
func AllowUser(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input AllowUserInput) (*AllowUserOutput, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}
	if !catalog.ValidEmail(input.Email) {
		return nil, errors.NewInvalidField("email", "must be a valid email address")
	}
	if input.Role != "" && input.Role != catalog.RoleUser && input.Role != catalog.RoleAdmin {
		return nil, errors.NewInvalidField("role", "must be one of: user, admin")
	}

	u := catalog.NewAuthorizedUser(input.Email, input.Role, input.Name, now())
	body, err := catalog.EncodeAuthorizedUser(u)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	doc := &db.Document{
		Collection: catalog.CollectionAuthorizedUsers,
		ID:         u.Email,
		TitleNorm:  u.Email,
		Body:       body,
		CreatedAt:  u.CreatedAt,
	}
	if err := db.Insert(ctx, database, doc); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewNameAlreadyExists(catalog.CollectionAuthorizedUsers, u.Email)
		}
		return nil, err
	}

	return &AllowUserOutput{Email: u.Email, Role: u.Role}, nil
}

// RevokeUser removes an email from the allow-list. Admins cannot revoke themselves.
func RevokeUser(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, email string) (*RevokeUserOutput, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}
	email = catalog.NormalizeEmail(email)
	if email == "" {
		return nil, errors.NewInvalidField("email", "is required")
	}
	if email == actor.Email {
		return nil, errors.NewInvalidRequest("cannot revoke your own access")
	}
	if err := db.DeleteByID(ctx, database, catalog.CollectionAuthorizedUsers, email); err != nil {
		return nil, err
	}
	return &RevokeUserOutput{Revoked: true, Email: email}, nil
}

// ListAuthorizedUsers returns the allow-list ordered by email.
func ListAuthorizedUsers(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input ListUsersInput) (*ListUsersOutput, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}
	limit := pageLimit(input.Limit, cfg)

	page, err := db.Find(ctx, database, db.Query{
		Collection: catalog.CollectionAuthorizedUsers,
		SortBy:     db.SortTitle,
		Limit:      limit,
		After:      input.Cursor,
	})
	if err != nil {
		return nil, err
	}
	total, err := db.Count(ctx, database, catalog.CollectionAuthorizedUsers, "")
	if err != nil {
		return nil, err
	}

	items := make([]catalog.AuthorizedUser, 0, len(page.Docs))
	for _, d := range page.Docs {
		u, err := catalog.DecodeAuthorizedUser(d.ID, d.Body, d.CreatedAt)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		items = append(items, u)
	}

	return &ListUsersOutput{
		Items: items,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
			Total:      total,
		},
	}, nil
}
