package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
)

var (
	adminActor = Actor{UserID: "admin-1", Email: "admin@example.com"}
	agentActor = Actor{UserID: "agent-1", Email: "agent@example.com"}
	otherActor = Actor{UserID: "agent-2", Email: "other@example.com"}
)

func setupDB(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.AdminEmails = []string{adminActor.Email}
	return database, cfg
}

type fakeSink struct {
	text string
	err  error
}

func (f *fakeSink) WriteAll(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

func TestActorFrom(t *testing.T) {
	assert.False(t, ActorFrom(nil).SignedIn())

	a := ActorFrom(&catalog.Principal{ID: "u1", Email: " Agent@Example.com "})
	assert.True(t, a.SignedIn())
	assert.Equal(t, "agent@example.com", a.Email)
}

func TestPageLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PageSize = 7

	assert.Equal(t, DefaultListLimit, pageLimit(0, nil))
	assert.Equal(t, 7, pageLimit(0, cfg))
	assert.Equal(t, 3, pageLimit(3, cfg))
	assert.Equal(t, MaxListLimit, pageLimit(1000, cfg))
}

func TestIsAuthorized(t *testing.T) {
	database, cfg := setupDB(t)
	ctx := context.Background()

	ok, err := IsAuthorized(ctx, database, cfg, "ADMIN@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "configured admins are always authorized")

	ok, err = IsAuthorized(ctx, database, cfg, agentActor.Email)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: " Agent@Example.com "})
	require.NoError(t, err)

	ok, err = AllowList(database, cfg).IsAuthorized(ctx, agentActor.Email)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsAuthorized(ctx, database, cfg, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAdmin(t *testing.T) {
	database, cfg := setupDB(t)
	ctx := context.Background()

	_, err := AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: "lead@example.com", Role: catalog.RoleAdmin})
	require.NoError(t, err)
	_, err = AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: agentActor.Email})
	require.NoError(t, err)

	tests := []struct {
		email string
		want  bool
	}{
		{adminActor.Email, true},
		{"lead@example.com", true},
		{agentActor.Email, false},
		{"nobody@example.com", false},
	}
	for _, tt := range tests {
		got, err := IsAdmin(ctx, database, cfg, tt.email)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.email)
	}
}

func TestAllowUser_Validation(t *testing.T) {
	database, cfg := setupDB(t)
	ctx := context.Background()

	_, err := AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: "not-an-email"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: "a@example.com", Role: "owner"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = AllowUser(ctx, database, cfg, agentActor, AllowUserInput{Email: "a@example.com"})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	_, err = AllowUser(ctx, database, cfg, Actor{}, AllowUserInput{Email: "a@example.com"})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestAllowUser_Duplicate(t *testing.T) {
	database, cfg := setupDB(t)
	ctx := context.Background()

	out, err := AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, catalog.RoleUser, out.Role)

	_, err = AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: "A@EXAMPLE.COM"})
	assert.True(t, errors.Is(err, errors.ErrNameAlreadyExists), "got %v", err)
}

func TestRevokeUser(t *testing.T) {
	database, cfg := setupDB(t)
	ctx := context.Background()

	_, err := AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: agentActor.Email})
	require.NoError(t, err)

	out, err := RevokeUser(ctx, database, cfg, adminActor, " AGENT@example.com")
	require.NoError(t, err)
	assert.True(t, out.Revoked)

	ok, err := IsAuthorized(ctx, database, cfg, agentActor.Email)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = RevokeUser(ctx, database, cfg, adminActor, agentActor.Email)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = RevokeUser(ctx, database, cfg, adminActor, adminActor.Email)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestListAuthorizedUsers(t *testing.T) {
	database, cfg := setupDB(t)
	ctx := context.Background()

	for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		_, err := AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: email})
		require.NoError(t, err)
	}

	page1, err := ListAuthorizedUsers(ctx, database, cfg, adminActor, ListUsersInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)
	assert.Equal(t, "a@example.com", page1.Items[0].Email)
	assert.Equal(t, "b@example.com", page1.Items[1].Email)
	assert.True(t, page1.Pagination.HasMore)
	assert.Equal(t, 3, page1.Pagination.Total)

	page2, err := ListAuthorizedUsers(ctx, database, cfg, adminActor, ListUsersInput{Limit: 2, Cursor: page1.Pagination.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, "c@example.com", page2.Items[0].Email)
	assert.False(t, page2.Pagination.HasMore)

	_, err = ListAuthorizedUsers(ctx, database, cfg, agentActor, ListUsersInput{})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestRequireSignedIn(t *testing.T) {
	err := requireSignedIn(Actor{})
	var ccErr *errors.CCError
	require.True(t, stderrors.As(err, &ccErr))
	assert.Equal(t, 403, ccErr.Status)
	assert.NoError(t, requireSignedIn(agentActor))
}
