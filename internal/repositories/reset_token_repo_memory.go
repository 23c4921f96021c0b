package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"accounts/internal/models"

	"github.com/google/uuid"
)

// MemoryResetTokenRepository is an in-memory implementation of ResetTokenRepository.
// It updates passwords through the MemoryUserRepository it was built with.
type MemoryResetTokenRepository struct {
	users  *MemoryUserRepository
	tokens map[string]models.ResetToken // keyed by token hash
	mu     sync.Mutex
}

// NewMemoryResetTokenRepository creates a new instance of MemoryResetTokenRepository.
func NewMemoryResetTokenRepository(users *MemoryUserRepository) *MemoryResetTokenRepository {
	return &MemoryResetTokenRepository{
		users:  users,
		tokens: make(map[string]models.ResetToken),
	}
}

// Replace drops the user's previous tokens and stores reset.
func (r *MemoryResetTokenRepository) Replace(_ context.Context, reset *models.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reset.ID == "" {
		reset.ID = uuid.New().String()
	}
	r.deleteByUserLocked(reset.UserID)
	r.tokens[reset.TokenHash] = *reset
	return nil
}

// GetByHash returns the token stored under tokenHash.
func (r *MemoryResetTokenRepository) GetByHash(_ context.Context, tokenHash string) (*models.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset, ok := r.tokens[tokenHash]
	if !ok {
		return nil, fmt.Errorf("reset token: %w", ErrNotFound)
	}
	return &reset, nil
}

// Consume removes the token and all siblings, then sets the owner's password.
func (r *MemoryResetTokenRepository) Consume(ctx context.Context, tokenHash, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset, ok := r.tokens[tokenHash]
	if !ok || reset.UserID != userID {
		return fmt.Errorf("reset token already used: %w", ErrNotFound)
	}
	if err := r.users.SetPassword(ctx, userID, passwordHash, time.Now()); err != nil {
		return err
	}
	r.deleteByUserLocked(userID)
	return nil
}

// DeleteByHash removes a single token.
func (r *MemoryResetTokenRepository) DeleteByHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, tokenHash)
	return nil
}

// DeleteByUser removes every token of a user.
func (r *MemoryResetTokenRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteByUserLocked(userID)
	return nil
}

// DeleteExpired removes tokens whose expiry is not after now.
func (r *MemoryResetTokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for hash, reset := range r.tokens {
		if reset.IsExpiredAt(now) {
			delete(r.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

// CountByUser returns how many tokens a user currently holds.
func (r *MemoryResetTokenRepository) CountByUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, reset := range r.tokens {
		if reset.UserID == userID {
			n++
		}
	}
	return n
}

func (r *MemoryResetTokenRepository) deleteByUserLocked(userID string) {
	for hash, reset := range r.tokens {
		if reset.UserID == userID {
			delete(r.tokens, hash)
		}
	}
}
