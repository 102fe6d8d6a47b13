package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	SessionsCollectionName = "Editing_sessions"
)

type mongoSessionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSessionRepository(cfg *config.Config) SessionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSessionRepository{
		cfg:        cfg,
		collection: db.Collection(SessionsCollectionName),
	}
}

func (r *mongoSessionRepository) Upsert(ctx context.Context, start model.SessionStart, now time.Time) (*model.EditingSession, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"dashboard_id":  start.DashboardID,
		"user_id":       start.UserID,
		"user_name":     start.UserName,
		"last_activity": now,
	}
	if start.UserEmail != "" {
		set["user_email"] = start.UserEmail
	}
	if len(start.ClientInfo) > 0 {
		set["client_info"] = start.ClientInfo
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"session_id":   uuid.NewString(),
			"connected_at": now,
		},
		"$inc": bson.M{"version": 1},
	}
	filter := bson.M{"_id": model.SessionKey(start.DashboardID, start.UserID)}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var session model.EditingSession
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if mongo.IsDuplicateKeyError(err) {
		// Two concurrent upserts both missed and raced on insert; the loser
		// now finds the winner's document and updates it.
		err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	}
	if err != nil {
		return nil, transient("failed to upsert editing session", err)
	}
	return &session, nil
}

func (r *mongoSessionRepository) Touch(ctx context.Context, dashboardID, userID string, now time.Time) (*model.EditingSession, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": model.SessionKey(dashboardID, userID)}
	update := bson.M{
		"$set": bson.M{"last_activity": now},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session model.EditingSession
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, collaborationerrors.ErrNotFound
		}
		return nil, transient("failed to touch editing session", err)
	}
	return &session, nil
}

func (r *mongoSessionRepository) Delete(ctx context.Context, dashboardID, userID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": model.SessionKey(dashboardID, userID)})
	if err != nil {
		return false, transient("failed to delete editing session", err)
	}
	return result.DeletedCount > 0, nil
}

func (r *mongoSessionRepository) DeleteIf(ctx context.Context, session *model.EditingSession) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        model.SessionKey(session.DashboardID, session.UserID),
		"version":    session.Version,
		"session_id": session.SessionID,
	}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return transient("failed to delete editing session", err)
	}
	if result.DeletedCount == 0 {
		return collaborationerrors.ErrStaleVersion
	}
	return nil
}

func (r *mongoSessionRepository) ListByDashboard(ctx context.Context, dashboardID string) ([]*model.EditingSession, error) {
	return r.find(ctx, bson.M{"dashboard_id": dashboardID})
}

func (r *mongoSessionRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*model.EditingSession, error) {
	return r.find(ctx, bson.M{"last_activity": bson.M{"$lt": cutoff}})
}

func (r *mongoSessionRepository) DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"dashboard_id": dashboardID})
	if err != nil {
		return 0, transient("failed to delete dashboard editing sessions", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoSessionRepository) find(ctx context.Context, filter bson.M) ([]*model.EditingSession, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "connected_at", Value: 1}, {Key: "user_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, transient("failed to find editing sessions", err)
	}
	defer cursor.Close(ctx)

	var sessions []*model.EditingSession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, transient("failed to decode editing sessions", err)
	}
	return sessions, nil
}
