package repositories_test

import (
	"context"
	"testing"
	"time"

	"accounts/internal/models"
	"accounts/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The same behaviour is expected from every backend, so each backend's test
// file runs these against its own repositories.

func newUser(email string) *models.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := &models.User{
		Name:      "Ada",
		Email:     email,
		Password:  "$2a$04$hash",
		CreatedAt: now,
		UpdatedAt: now,
	}
	user.ApplyDefaults()
	return user
}

func testUserRepository(t *testing.T, repo repositories.UserRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		user := newUser("ada@example.com")
		require.NoError(t, repo.Create(ctx, user))
		require.NotEmpty(t, user.ID)

		byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
		assert.Equal(t, "Ada", byEmail.Name)
		assert.Equal(t, models.DefaultBio, byEmail.Bio)
		assert.Equal(t, user.Password, byEmail.Password)

		byID, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", byID.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newUser("dup@example.com")))
		err := repo.Create(ctx, newUser("dup@example.com"))
		assert.ErrorIs(t, err, repositories.ErrDuplicateEmail)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = repo.GetByID(ctx, "missing-id")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("update profile keeps email and password", func(t *testing.T) {
		user := newUser("update@example.com")
		require.NoError(t, repo.Create(ctx, user))

		changed := *user
		changed.Name = "Ada Lovelace"
		changed.Bio = "Mathematician"
		changed.Email = "other@example.com"
		changed.Password = "$2a$04$stale"
		changed.UpdatedAt = user.UpdatedAt.Add(time.Minute)
		require.NoError(t, repo.UpdateProfile(ctx, &changed))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", stored.Name)
		assert.Equal(t, "Mathematician", stored.Bio)
		assert.Equal(t, "update@example.com", stored.Email)
		assert.Equal(t, user.Password, stored.Password)

		_, err = repo.GetByEmail(ctx, "other@example.com")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("set password", func(t *testing.T) {
		user := newUser("password@example.com")
		require.NoError(t, repo.Create(ctx, user))

		at := user.UpdatedAt.Add(time.Hour)
		require.NoError(t, repo.SetPassword(ctx, user.ID, "$2a$04$changed", at))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "$2a$04$changed", stored.Password)
		assert.Equal(t, "Ada", stored.Name)
		assert.WithinDuration(t, at, stored.UpdatedAt, time.Millisecond)
	})

	t.Run("update missing", func(t *testing.T) {
		ghost := newUser("ghost@example.com")
		ghost.ID = "missing-id"
		assert.ErrorIs(t, repo.UpdateProfile(ctx, ghost), repositories.ErrNotFound)
		assert.ErrorIs(t, repo.SetPassword(ctx, ghost.ID, "$2a$04$x", time.Now()), repositories.ErrNotFound)
	})
}

func newResetToken(userID, hash string, expiresAt time.Time) *models.ResetToken {
	return &models.ResetToken{
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: expiresAt.Add(-30 * time.Minute),
		ExpiresAt: expiresAt,
	}
}

func testResetTokenRepository(t *testing.T, users repositories.UserRepository, resets repositories.ResetTokenRepository) {
	ctx := context.Background()
	future := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Millisecond)

	createUser := func(t *testing.T, email string) *models.User {
		user := newUser(email)
		require.NoError(t, users.Create(ctx, user))
		return user
	}

	t.Run("replace keeps one token per user", func(t *testing.T) {
		user := createUser(t, "replace@example.com")

		require.NoError(t, resets.Replace(ctx, newResetToken(user.ID, "hash-r1", future)))
		stored, err := resets.GetByHash(ctx, "hash-r1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.UserID)
		assert.WithinDuration(t, future, stored.ExpiresAt, time.Millisecond)

		require.NoError(t, resets.Replace(ctx, newResetToken(user.ID, "hash-r2", future)))
		_, err = resets.GetByHash(ctx, "hash-r1")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = resets.GetByHash(ctx, "hash-r2")
		assert.NoError(t, err)
	})

	t.Run("consume sets password once", func(t *testing.T) {
		user := createUser(t, "consume@example.com")
		require.NoError(t, resets.Replace(ctx, newResetToken(user.ID, "hash-c1", future)))

		assert.ErrorIs(t, resets.Consume(ctx, "hash-c1", "someone-else", "$2a$04$new"), repositories.ErrNotFound)

		require.NoError(t, resets.Consume(ctx, "hash-c1", user.ID, "$2a$04$new"))
		stored, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "$2a$04$new", stored.Password)

		_, err = resets.GetByHash(ctx, "hash-c1")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.ErrorIs(t, resets.Consume(ctx, "hash-c1", user.ID, "$2a$04$again"), repositories.ErrNotFound)
	})

	t.Run("delete by hash and user", func(t *testing.T) {
		ada := createUser(t, "delete-a@example.com")
		bob := createUser(t, "delete-b@example.com")
		require.NoError(t, resets.Replace(ctx, newResetToken(ada.ID, "hash-d1", future)))
		require.NoError(t, resets.Replace(ctx, newResetToken(bob.ID, "hash-d2", future)))

		require.NoError(t, resets.DeleteByHash(ctx, "hash-d1"))
		require.NoError(t, resets.DeleteByHash(ctx, "hash-d1"))
		_, err := resets.GetByHash(ctx, "hash-d1")
		assert.ErrorIs(t, err, repositories.ErrNotFound)

		require.NoError(t, resets.DeleteByUser(ctx, bob.ID))
		_, err = resets.GetByHash(ctx, "hash-d2")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		stale := createUser(t, "stale@example.com")
		boundary := createUser(t, "boundary@example.com")
		fresh := createUser(t, "fresh@example.com")
		require.NoError(t, resets.Replace(ctx, newResetToken(stale.ID, "hash-e1", now.Add(-time.Minute))))
		require.NoError(t, resets.Replace(ctx, newResetToken(boundary.ID, "hash-e2", now)))
		require.NoError(t, resets.Replace(ctx, newResetToken(fresh.ID, "hash-e3", now.Add(time.Minute))))

		n, err := resets.DeleteExpired(ctx, now)
		require.NoError(t, err)
		// Mongo's TTL monitor may already have removed the stale token.
		assert.LessOrEqual(t, n, int64(2))

		_, err = resets.GetByHash(ctx, "hash-e1")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = resets.GetByHash(ctx, "hash-e2")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = resets.GetByHash(ctx, "hash-e3")
		assert.NoError(t, err)
	})
}
