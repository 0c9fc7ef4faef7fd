package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espresso-tracker/internal/domain"
	"espresso-tracker/internal/repository"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupUserRepo(t *testing.T) (repository.UserRepository, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	r := NewUserRepository(db)
	require.NoError(t, r.Init(context.Background()))
	return r, db
}

func TestUserRepository_CreateAndGetByEmail(t *testing.T) {
	r, _ := setupUserRepo(t)
	ctx := context.Background()

	user := &domain.User{
		Email:        "barista@example.com",
		PasswordHash: "$2a$10$fakehash",
	}
	id, err := r.Create(ctx, user)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := r.GetByEmail(ctx, "barista@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "barista@example.com", got.Email)
	assert.Equal(t, "$2a$10$fakehash", got.PasswordHash)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	r, _ := setupUserRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, &domain.User{Email: "dup@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = r.Create(ctx, &domain.User{Email: "dup@example.com", PasswordHash: "h2"})
	require.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestUserRepository_GetMissReturnsNilNil(t *testing.T) {
	r, _ := setupUserRepo(t)
	ctx := context.Background()

	got, err := r.GetByEmail(ctx, "absent@example.com")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = r.GetByID(ctx, 42)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	r, _ := setupUserRepo(t)
	ctx := context.Background()

	id, err := r.Create(ctx, &domain.User{Email: "rotate@example.com", PasswordHash: "old"})
	require.NoError(t, err)

	require.NoError(t, r.UpdatePassword(ctx, id, "new"))

	got, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.PasswordHash)
}

func TestUserRepository_UpdatePasswordMissingUser(t *testing.T) {
	r, _ := setupUserRepo(t)
	err := r.UpdatePassword(context.Background(), 99, "h")
	require.Error(t, err)
}

func TestUserRepository_InitIdempotent(t *testing.T) {
	r, _ := setupUserRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, &domain.User{Email: "keep@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, r.Init(ctx))

	got, err := r.GetByEmail(ctx, "keep@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
}
