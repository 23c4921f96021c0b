package models

import "time"

// ResetToken is a pending password reset. Only the sha256 of the raw token is stored.
type ResetToken struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	UserID    string    `json:"user_id" gorm:"index;type:varchar(36);not null" bson:"user_id"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;type:char(64);not null" bson:"token_hash"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null" bson:"expires_at"`
}

// IsExpiredAt reports whether the token is no longer usable at t.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}
