package repository

import (
	"context"
	"time"

	"mailsort-be/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LabelRepository caches the flag-name -> Gmail-label-id mapping maintained
// by the reconciler. The cache is internal tracking only; Gmail labels
// themselves are never deleted through it.
type LabelRepository struct {
	collection *mongo.Collection
}

func NewLabelRepository(db *mongo.Database) *LabelRepository {
	r := &LabelRepository{
		collection: db.Collection("gmail_labels"),
	}

	ctx := context.Background()
	idxView := r.collection.Indexes()
	_, _ = idxView.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "flagName", Value: 1}},
		Options: options.Index().SetName("idx_email_flag").SetUnique(true),
	})

	return r
}

// GetMappings returns all cached rows for a user.
func (r *LabelRepository) GetMappings(ctx context.Context, email string) ([]models.LabelMapping, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"email": email})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var mappings []models.LabelMapping
	if err = cursor.All(ctx, &mappings); err != nil {
		return nil, err
	}

	return mappings, nil
}

// Upsert writes the row for (email, flagName), replacing any previous label id.
func (r *LabelRepository) Upsert(ctx context.Context, m models.LabelMapping) error {
	filter := bson.M{"email": m.Email, "flagName": m.FlagName}
	update := bson.M{"$set": bson.M{
		"labelId":   m.LabelID,
		"color":     m.Color,
		"updatedAt": time.Now(),
	}}
	opts := options.Update().SetUpsert(true)

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// Rename re-keys a cached row from one flag name to another, keeping the
// label id. Used after a successful provider-side label rename.
func (r *LabelRepository) Rename(ctx context.Context, email, oldName, newName string) error {
	filter := bson.M{"email": email, "flagName": oldName}
	update := bson.M{"$set": bson.M{
		"flagName":  newName,
		"updatedAt": time.Now(),
	}}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	return err
}

// PruneExcept deletes cached rows for the user whose flag name is not in
// keep. Provider labels are left untouched.
func (r *LabelRepository) PruneExcept(ctx context.Context, email string, keep []string) error {
	if keep == nil {
		keep = []string{}
	}
	filter := bson.M{"email": email, "flagName": bson.M{"$nin": keep}}
	_, err := r.collection.DeleteMany(ctx, filter)
	return err
}
