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

// SessionRepository persists sorting sessions and enforces the session state
// machine: running -> completed | failed, terminal states final.
type SessionRepository struct {
	collection *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	r := &SessionRepository{
		collection: db.Collection("sorting_sessions"),
	}

	ctx := context.Background()
	idxView := r.collection.Indexes()
	_, _ = idxView.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}},
		Options: options.Index().SetName("idx_session_id").SetUnique(true),
	})
	_, _ = idxView.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "startTime", Value: -1}},
		Options: options.Index().SetName("idx_email_start"),
	})

	return r
}

// Create inserts a new session in the running state. The record is created
// before any provider work so a crashed run still leaves a durable trace.
func (r *SessionRepository) Create(ctx context.Context, session *models.SortingSession) error {
	if session.ID == "" {
		session.ID = primitive.NewObjectID().Hex()
	}
	session.Status = models.SessionRunning
	session.StartTime = time.Now()

	_, err := r.collection.InsertOne(ctx, session)
	return err
}

// Update applies a partial update to a session as a single $set. A terminal
// status additionally stamps endTime, and the filter requires the session to
// still be running so terminal states can never be transitioned out of.
func (r *SessionRepository) Update(ctx context.Context, sessionID string, upd models.SessionUpdate) error {
	set := bson.M{}
	filter := bson.M{"sessionId": sessionID}

	if upd.Status != nil {
		set["status"] = *upd.Status
		if *upd.Status == models.SessionCompleted || *upd.Status == models.SessionFailed {
			set["endTime"] = time.Now()
		}
		filter["status"] = models.SessionRunning
	}
	if upd.TotalEmails != nil {
		set["totalEmails"] = *upd.TotalEmails
	}
	if upd.ProcessedEmails != nil {
		set["processedEmails"] = *upd.ProcessedEmails
	}
	if upd.ErrorMessage != nil {
		set["errorMessage"] = *upd.ErrorMessage
	}

	if len(set) == 0 {
		return nil
	}

	_, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

// Latest returns the user's most recent session, or nil when none exists.
func (r *SessionRepository) Latest(ctx context.Context, email string) (*models.SortingSession, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "startTime", Value: -1}})

	var session models.SortingSession
	err := r.collection.FindOne(ctx, bson.M{"email": email}, opts).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// LatestCompletedSort returns the most recent completed sort session,
// skipping sessions recorded by the revert workflow itself.
func (r *SessionRepository) LatestCompletedSort(ctx context.Context, email string) (*models.SortingSession, error) {
	filter := bson.M{
		"email":     email,
		"status":    models.SessionCompleted,
		"flagsUsed": bson.M{"$not": primitive.Regex{Pattern: "^" + models.RevertPrefix}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "startTime", Value: -1}})

	var session models.SortingSession
	err := r.collection.FindOne(ctx, filter, opts).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// History returns the user's sessions newest first.
func (r *SessionRepository) History(ctx context.Context, email string, limit int) ([]models.SortingSession, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "startTime", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"email": email}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []models.SortingSession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}

	return sessions, nil
}

// BySessionID returns one session by its public id.
func (r *SessionRepository) BySessionID(ctx context.Context, sessionID string) (*models.SortingSession, error) {
	var session models.SortingSession
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}
