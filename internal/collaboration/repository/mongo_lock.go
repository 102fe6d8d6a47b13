package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	LocksCollectionName = "Widget_locks"
)

type mongoLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

// NewMongoLockRepository keys every lock document by "<dashboard>:<widget>",
// so the unique _id index is what makes Insert an atomic create-if-absent.
func NewMongoLockRepository(cfg *config.Config) LockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{
		cfg:        cfg,
		collection: db.Collection(LocksCollectionName),
	}
}

func (r *mongoLockRepository) Get(ctx context.Context, dashboardID, widgetID string) (*model.WidgetLock, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var lock model.WidgetLock
	err := r.collection.FindOne(ctx, bson.M{"_id": model.LockKey(dashboardID, widgetID)}).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, collaborationerrors.ErrNotFound
		}
		return nil, transient("failed to find widget lock", err)
	}
	return &lock, nil
}

func (r *mongoLockRepository) Insert(ctx context.Context, lock *model.WidgetLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)
	lock.Version = 1
	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return collaborationerrors.ErrAlreadyExists
		}
		return transient("failed to insert widget lock", err)
	}
	return nil
}

func (r *mongoLockRepository) Replace(ctx context.Context, lock *model.WidgetLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)
	filter := bson.M{"_id": lock.Key, "version": lock.Version, "lock_id": lock.LockID}
	update := bson.M{
		"$set": bson.M{
			"owner_user_id":   lock.OwnerUserID,
			"owner_user_name": lock.OwnerUserName,
			"acquired_at":     lock.AcquiredAt,
			"last_heartbeat":  lock.LastHeartbeat,
			"ttl_seconds":     lock.TTLSeconds,
			"expires_at":      lock.ExpiresAt,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return transient("failed to update widget lock", err)
	}
	if result.MatchedCount == 0 {
		return collaborationerrors.ErrStaleVersion
	}
	lock.Version++
	return nil
}

// DeleteIf cannot tell a vanished document from a changed one in a single
// round trip, so both come back as ErrStaleVersion and callers re-read.
func (r *mongoLockRepository) DeleteIf(ctx context.Context, lock *model.WidgetLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":     model.LockKey(lock.DashboardID, lock.WidgetID),
		"version": lock.Version,
		"lock_id": lock.LockID,
	}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return transient("failed to delete widget lock", err)
	}
	if result.DeletedCount == 0 {
		return collaborationerrors.ErrStaleVersion
	}
	return nil
}

func (r *mongoLockRepository) ListByDashboard(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error) {
	return r.find(ctx, bson.M{"dashboard_id": dashboardID})
}

func (r *mongoLockRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.WidgetLock, error) {
	return r.find(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
}

func (r *mongoLockRepository) DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"dashboard_id": dashboardID})
	if err != nil {
		return 0, transient("failed to delete dashboard widget locks", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoLockRepository) find(ctx context.Context, filter bson.M) ([]*model.WidgetLock, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "acquired_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, transient("failed to find widget locks", err)
	}
	defer cursor.Close(ctx)

	var locks []*model.WidgetLock
	if err = cursor.All(ctx, &locks); err != nil {
		return nil, transient("failed to decode widget locks", err)
	}
	return locks, nil
}
