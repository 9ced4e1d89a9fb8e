package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/storefront/internal/core"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/testutil"
)

func newTestUserRepo(t *testing.T) *UserRepo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	return NewUserRepo(testutil.SetupAutoDB(t))
}

func TestUserRepo_CreateAndLookup(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, core.CreateUserRequest{
		Email:        "  Buyer@Shop.Test ",
		PasswordHash: "$2a$10$hash",
		Metadata:     map[string]string{"name": "Buyer"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "buyer@shop.test", created.Email)
	assert.Equal(t, "Buyer", created.Metadata["name"])

	byEmail, err := repo.GetByEmail(ctx, "BUYER@shop.test")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "$2a$10$hash", byEmail.PasswordHash)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)
}

func TestUserRepo_DuplicateEmailIsConflict(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, core.CreateUserRequest{Email: "dup@shop.test", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, core.CreateUserRequest{Email: "DUP@shop.test", PasswordHash: "h"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "User already registered", apperrors.UserMessage(err, ""))
}

func TestUserRepo_UpdatePasswordHash(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, core.CreateUserRequest{Email: "pw@shop.test", PasswordHash: "old"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdatePasswordHash(ctx, u.ID, "new"))
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)

	err = repo.UpdatePasswordHash(ctx, "6f1c2c1e-0000-4000-8000-000000000000", "x")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUserRepo_NotFound(t *testing.T) {
	repo := NewUserRepo(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"blank email", func() error { _, err := repo.GetByEmail(ctx, " "); return err }},
		{"non uuid id", func() error { _, err := repo.GetByID(ctx, "oidc|abc"); return err }},
		{"non uuid update", func() error { return repo.UpdatePasswordHash(ctx, "nope", "h") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperrors.IsNotFound(tt.call()))
		})
	}
}

func TestUserRepo_CreateValidation(t *testing.T) {
	repo := NewUserRepo(nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, core.CreateUserRequest{Email: "", PasswordHash: "h"})
	assert.Equal(t, "email", apperrors.GetField(err))

	_, err = repo.Create(ctx, core.CreateUserRequest{Email: "a@b.c"})
	assert.Equal(t, "password", apperrors.GetField(err))
}
