package repositories

import (
	"context"
	"time"

	"accounts/internal/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create assigns an ID when empty and stores the user.
	// Returns ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// UpdateProfile writes name, phone, bio, photo and updated_at of user.
	// The stored password and email are left as they are.
	UpdateProfile(ctx context.Context, user *models.User) error
	// SetPassword replaces the password hash of the user with the given ID.
	SetPassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}
