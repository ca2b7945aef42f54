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

// ProcessingLogRepository stores the append-only per-message log of a run.
type ProcessingLogRepository struct {
	collection *mongo.Collection
}

func NewProcessingLogRepository(db *mongo.Database) *ProcessingLogRepository {
	r := &ProcessingLogRepository{
		collection: db.Collection("email_processing_log"),
	}

	ctx := context.Background()
	idxView := r.collection.Indexes()
	_, _ = idxView.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("idx_session_time"),
	})

	return r
}

// Append writes one entry. Entries are never updated or deleted.
func (r *ProcessingLogRepository) Append(ctx context.Context, entry models.ProcessingLogEntry) error {
	if entry.ID == "" {
		entry.ID = primitive.NewObjectID().Hex()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

// BySession returns all entries of a session, newest first.
func (r *ProcessingLogRepository) BySession(ctx context.Context, sessionID string) ([]models.ProcessingLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.ProcessingLogEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// SuccessesBySession returns the entries eligible for revert: status success
// with a non-empty assigned label.
func (r *ProcessingLogRepository) SuccessesBySession(ctx context.Context, sessionID string) ([]models.ProcessingLogEntry, error) {
	filter := bson.M{
		"sessionId":     sessionID,
		"status":        models.ProcessingSuccess,
		"assignedLabel": bson.M{"$nin": bson.A{nil, ""}},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.ProcessingLogEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}
