package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"accounts/internal/models"
	"accounts/internal/repositories"
)

// ResetTokenBytes is the amount of randomness in a reset token.
const ResetTokenBytes = 32

// Password length bounds, counted in characters.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 23
)

var (
	ErrResetTokenNotFound = errors.New("reset token not found")
	ErrResetTokenExpired  = errors.New("reset token expired")
	ErrPasswordLength     = errors.New("password must be between 6 and 23 characters")
)

// ResetTokenService issues and consumes single-use password reset tokens.
type ResetTokenService struct {
	resets repositories.ResetTokenRepository
	hasher PasswordHasher
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokenService creates a new ResetTokenService.
func NewResetTokenService(resets repositories.ResetTokenRepository, hasher PasswordHasher, ttl time.Duration) *ResetTokenService {
	return &ResetTokenService{
		resets: resets,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a reset token for userID, replacing any previous one, and
// returns the raw value. Only its hash is persisted.
func (s *ResetTokenService) Issue(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	raw := hex.EncodeToString(buf) + userID

	now := s.now()
	reset := &models.ResetToken{
		UserID:    userID,
		TokenHash: HashResetToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.resets.Replace(ctx, reset); err != nil {
		return "", err
	}
	return raw, nil
}

// Consume validates rawToken, stores the hash of newPassword for its owner
// and invalidates the token. A password of the wrong length yields
// ErrPasswordLength and leaves the token usable.
func (s *ResetTokenService) Consume(ctx context.Context, rawToken, newPassword string) error {
	if n := utf8.RuneCountInString(newPassword); n < MinPasswordLength || n > MaxPasswordLength {
		return ErrPasswordLength
	}
	if rawToken == "" {
		return ErrResetTokenNotFound
	}
	tokenHash := HashResetToken(rawToken)

	reset, err := s.resets.GetByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrResetTokenNotFound
		}
		return err
	}

	if reset.IsExpiredAt(s.now()) {
		if err := s.resets.DeleteByHash(ctx, tokenHash); err != nil {
			log.Printf("Failed to delete expired reset token for user %s: %v", reset.UserID, err)
		}
		return ErrResetTokenExpired
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.resets.Consume(ctx, tokenHash, reset.UserID, hashed); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrResetTokenNotFound
		}
		return err
	}
	return nil
}

// TTL returns how long issued tokens stay valid.
func (s *ResetTokenService) TTL() time.Duration {
	return s.ttl
}

// Revoke drops every outstanding token of userID.
func (s *ResetTokenService) Revoke(ctx context.Context, userID string) error {
	return s.resets.DeleteByUser(ctx, userID)
}

// PurgeExpired deletes expired tokens and returns how many were removed.
func (s *ResetTokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.resets.DeleteExpired(ctx, s.now())
}

// RunJanitor purges expired tokens every interval until ctx is cancelled.
func (s *ResetTokenService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				log.Printf("Failed to purge expired reset tokens: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Purged %d expired reset tokens", n)
			}
		}
	}
}

// HashResetToken returns the hex sha256 of a raw reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
