package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accounts/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMResetTokenRepository is a GORM implementation of ResetTokenRepository.
type GORMResetTokenRepository struct {
	db *gorm.DB
}

// NewGORMResetTokenRepository creates a new instance of GORMResetTokenRepository.
func NewGORMResetTokenRepository(db *gorm.DB) *GORMResetTokenRepository {
	return &GORMResetTokenRepository{db: db}
}

// Replace removes prior tokens for the user and stores reset in one transaction.
func (r *GORMResetTokenRepository) Replace(ctx context.Context, reset *models.ResetToken) error {
	if reset.ID == "" {
		reset.ID = uuid.New().String()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", reset.UserID).Delete(&models.ResetToken{}).Error; err != nil {
			return fmt.Errorf("failed to delete previous reset tokens: %w", err)
		}
		if err := tx.Create(reset).Error; err != nil {
			return fmt.Errorf("failed to create reset token: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace reset token for user %s: %w", reset.UserID, err)
	}
	return nil
}

// GetByHash retrieves a reset token by the hash of its raw value.
func (r *GORMResetTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	var reset models.ResetToken
	if err := r.db.WithContext(ctx).First(&reset, "token_hash = ?", tokenHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reset token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return &reset, nil
}

// Consume deletes the token and updates the owner's password in one transaction.
// The delete runs first so that concurrent replays of the same token find
// nothing to delete and fail.
func (r *GORMResetTokenRepository) Consume(ctx context.Context, tokenHash, userID, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("token_hash = ? AND user_id = ?", tokenHash, userID).Delete(&models.ResetToken{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete reset token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("reset token already used: %w", ErrNotFound)
		}

		res = tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"password":   passwordHash,
			"updated_at": time.Now(),
		})
		if res.Error != nil {
			return fmt.Errorf("failed to update password for user %s: %w", userID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user with ID %s: %w", userID, ErrNotFound)
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.ResetToken{}).Error; err != nil {
			return fmt.Errorf("failed to delete remaining reset tokens: %w", err)
		}
		return nil
	})
}

// DeleteByHash removes a single reset token. Missing tokens are not an error.
func (r *GORMResetTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.ResetToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete reset token: %w", err)
	}
	return nil
}

// DeleteByUser removes all reset tokens belonging to a user.
func (r *GORMResetTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ResetToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete reset tokens for user %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired removes expired reset tokens and returns how many were removed.
func (r *GORMResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.ResetToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
