// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

func createTestUser(ctx context.Context, t *testing.T, email string) *auth.User {
	t.Helper()
	repo := postgres.NewUserRepository(testPool)

	user, err := auth.NewUser(email, "$argon2id$testhash")
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, user))

	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_Integration_Add(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("round trip", func(t *testing.T) {
		user := createTestUser(ctx, t, "add_test@example.com")

		stored, err := repo.FindBy(ctx, auth.ByID, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
		assert.Equal(t, user.Email, stored.Email)
		assert.Equal(t, user.PasswordHash, stored.PasswordHash)
		assert.Nil(t, stored.SessionToken)
		assert.Nil(t, stored.ResetToken)
	})

	t.Run("unique index rejects duplicate email", func(t *testing.T) {
		createTestUser(ctx, t, "dup_test@example.com")

		dup, err := auth.NewUser("dup_test@example.com", "$argon2id$otherhash")
		require.NoError(t, err)

		err = repo.Add(ctx, dup)
		assert.ErrorIs(t, err, auth.ErrAlreadyExists)
	})
}

func TestUserRepository_Integration_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("session token set, lookup, clear", func(t *testing.T) {
		user := createTestUser(ctx, t, "session_test@example.com")
		token := "integration-session-token"

		require.NoError(t, repo.Update(ctx, user.ID, auth.UserUpdate{SessionToken: &token}))

		stored, err := repo.FindBy(ctx, auth.BySessionToken, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)

		require.NoError(t, repo.Update(ctx, user.ID, auth.UserUpdate{ClearSessionToken: true}))

		_, err = repo.FindBy(ctx, auth.BySessionToken, token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("reset token cleared together with password change", func(t *testing.T) {
		user := createTestUser(ctx, t, "reset_test@example.com")
		token := "integration-reset-token"
		newHash := "$argon2id$rotated"

		require.NoError(t, repo.Update(ctx, user.ID, auth.UserUpdate{ResetToken: &token}))
		require.NoError(t, repo.Update(ctx, user.ID, auth.UserUpdate{PasswordHash: &newHash, ClearResetToken: true}))

		stored, err := repo.FindBy(ctx, auth.ByID, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, newHash, stored.PasswordHash)
		assert.Nil(t, stored.ResetToken)
	})

	t.Run("update of missing user", func(t *testing.T) {
		ghost, err := auth.NewUser("ghost@example.com", "$argon2id$hash")
		require.NoError(t, err)

		token := "tok"
		err = repo.Update(ctx, ghost.ID, auth.UserUpdate{SessionToken: &token})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}
