package repositories

import (
	"context"
	"time"

	"accounts/internal/models"
)

// ResetTokenRepository defines the interface for password reset token storage.
type ResetTokenRepository interface {
	// Replace atomically removes every token of reset.UserID and stores reset.
	Replace(ctx context.Context, reset *models.ResetToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.ResetToken, error)
	// Consume deletes the token identified by tokenHash and sets the owner's
	// password hash. Only one caller can consume a token. When the password
	// write fails with anything but ErrNotFound the token is left in place.
	// Returns ErrNotFound if the token was already consumed or the owner no
	// longer exists.
	Consume(ctx context.Context, tokenHash, userID, passwordHash string) error
	DeleteByHash(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID string) error
	// DeleteExpired removes every token whose expiry is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
