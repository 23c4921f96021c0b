package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accounts/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ResetTokensCollection is the collection holding reset token documents.
const ResetTokensCollection = "resettokens"

// MongoResetTokenRepository is a MongoDB implementation of ResetTokenRepository.
// Each user owns at most one document, so replacement is a single upsert.
type MongoResetTokenRepository struct {
	col   *mongo.Collection
	users *mongo.Collection
}

// NewMongoResetTokenRepository creates a new instance of MongoResetTokenRepository.
func NewMongoResetTokenRepository(db *mongo.Database) *MongoResetTokenRepository {
	return &MongoResetTokenRepository{
		col:   db.Collection(ResetTokensCollection),
		users: db.Collection(UsersCollection),
	}
}

// EnsureIndexes creates the lookup indexes and a TTL index on expires_at.
func (r *MongoResetTokenRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return fmt.Errorf("failed to create reset token indexes: %w", err)
	}
	return nil
}

// Replace upserts the user's single reset token document.
func (r *MongoResetTokenRepository) Replace(ctx context.Context, reset *models.ResetToken) error {
	if reset.ID == "" {
		reset.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": reset.UserID},
		bson.M{
			"$set": bson.M{
				"token_hash": reset.TokenHash,
				"created_at": reset.CreatedAt,
				"expires_at": reset.ExpiresAt,
			},
			"$setOnInsert": bson.M{"_id": reset.ID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to replace reset token for user %s: %w", reset.UserID, err)
	}
	return nil
}

// GetByHash retrieves a reset token by hash.
func (r *MongoResetTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	var reset models.ResetToken
	if err := r.col.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&reset); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("reset token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return &reset, nil
}

// Consume deletes the token document, then sets the password. The single
// document delete is what guarantees one-time use. If the password cannot be
// written the deleted document is put back so the token stays usable.
func (r *MongoResetTokenRepository) Consume(ctx context.Context, tokenHash, userID, passwordHash string) error {
	var reset models.ResetToken
	err := r.col.FindOneAndDelete(ctx, bson.M{"token_hash": tokenHash, "user_id": userID}).Decode(&reset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("reset token already used: %w", ErrNotFound)
		}
		return fmt.Errorf("failed to delete reset token: %w", err)
	}

	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{"password": passwordHash, "updated_at": time.Now()},
	})
	if err != nil {
		if _, restoreErr := r.col.InsertOne(context.WithoutCancel(ctx), &reset); restoreErr != nil {
			return fmt.Errorf("failed to update password for user %s: %w (restoring token: %v)", userID, err, restoreErr)
		}
		return fmt.Errorf("failed to update password for user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user with ID %s: %w", userID, ErrNotFound)
	}
	return nil
}

// DeleteByHash removes a single reset token.
func (r *MongoResetTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"token_hash": tokenHash}); err != nil {
		return fmt.Errorf("failed to delete reset token: %w", err)
	}
	return nil
}

// DeleteByUser removes every reset token of a user.
func (r *MongoResetTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to delete reset tokens for user %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired removes expired reset tokens. The TTL monitor also removes
// them, but only on its own schedule.
func (r *MongoResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	return res.DeletedCount, nil
}
