package repository

import (
	"context"
	"time"

	"mailsort-be/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FlagRepository handles user flag persistence. The sorting engine only
// reads from it; writes come from the flags API.
type FlagRepository struct {
	collection *mongo.Collection
}

func NewFlagRepository(db *mongo.Database) *FlagRepository {
	r := &FlagRepository{
		collection: db.Collection("user_flags"),
	}

	// Ensure indexes
	ctx := context.Background()
	idxView := r.collection.Indexes()
	_, _ = idxView.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetName("idx_email_name").SetUnique(true),
	})

	return r
}

// GetFlags returns all flags for a user ordered by name.
func (r *FlagRepository) GetFlags(ctx context.Context, email string) ([]models.Flag, error) {
	filter := bson.M{"email": email}
	findOptions := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flags []models.Flag
	if err = cursor.All(ctx, &flags); err != nil {
		return nil, err
	}

	return flags, nil
}

// GetActiveFlags returns the user's active flags ordered by name. The order
// is the tie-break order of the scoring engine, so it must stay stable.
func (r *FlagRepository) GetActiveFlags(ctx context.Context, email string) ([]models.Flag, error) {
	filter := bson.M{"email": email, "isActive": true}
	findOptions := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flags []models.Flag
	if err = cursor.All(ctx, &flags); err != nil {
		return nil, err
	}

	return flags, nil
}

// ReplaceFlags swaps the user's entire flag set for the given one.
func (r *FlagRepository) ReplaceFlags(ctx context.Context, email string, flags []models.Flag) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"email": email}); err != nil {
		return err
	}

	if len(flags) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, len(flags))
	for i := range flags {
		flags[i].ID = primitive.NewObjectID().Hex()
		flags[i].Email = email
		flags[i].CreatedAt = now
		flags[i].UpdatedAt = now
		docs[i] = flags[i]
	}

	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

// ClearFlags deletes all flags for a user.
func (r *FlagRepository) ClearFlags(ctx context.Context, email string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"email": email})
	return err
}
