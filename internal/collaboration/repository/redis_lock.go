package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisLockRepository struct {
	cfg    *config.Config
	client *redis.Client
}

// NewRedisLockRepository stores each lock as a hash and keeps per-dashboard
// and global index sets in step through Lua scripts.
func NewRedisLockRepository(cfg *config.Config) LockRepository {
	return &redisLockRepository{
		cfg:    cfg,
		client: cfg.Client.Redis,
	}
}

func (r *redisLockRepository) keys(lock *model.WidgetLock) []string {
	return []string{
		redisLockKey(lock.DashboardID, lock.WidgetID),
		redisLockIndexKey(lock.DashboardID),
		redisAllLocksKey,
	}
}

func (r *redisLockRepository) Get(ctx context.Context, dashboardID, widgetID string) (*model.WidgetLock, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, redisLockKey(dashboardID, widgetID)).Result()
	if err != nil {
		return nil, transient("failed to find widget lock", err)
	}
	if len(fields) == 0 {
		return nil, collaborationerrors.ErrNotFound
	}
	lock, err := decodeLock(fields)
	if err != nil {
		return nil, transient("failed to decode widget lock", err)
	}
	return lock, nil
}

func (r *redisLockRepository) Insert(ctx context.Context, lock *model.WidgetLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)
	lock.Version = 1
	created, err := insertScript.Run(ctx, r.client, r.keys(lock), lockFields(lock)...).Int()
	if err != nil {
		return transient("failed to insert widget lock", err)
	}
	if created == 0 {
		return collaborationerrors.ErrAlreadyExists
	}
	return nil
}

func (r *redisLockRepository) Replace(ctx context.Context, lock *model.WidgetLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	expected := lock.Version
	next := *lock
	next.Version = expected + 1
	args := append([]any{strconv.FormatInt(expected, 10), "lock_id", lock.LockID}, lockFields(&next)...)

	result, err := replaceScript.Run(ctx, r.client, r.keys(lock), args...).Int()
	if err != nil {
		return transient("failed to update widget lock", err)
	}
	if result != 1 {
		return collaborationerrors.ErrStaleVersion
	}
	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)
	lock.Version = next.Version
	return nil
}

func (r *redisLockRepository) DeleteIf(ctx context.Context, lock *model.WidgetLock) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := deleteIfScript.Run(ctx, r.client, r.keys(lock),
		strconv.FormatInt(lock.Version, 10), "lock_id", lock.LockID).Int()
	if err != nil {
		return transient("failed to delete widget lock", err)
	}
	switch result {
	case -1:
		return collaborationerrors.ErrNotFound
	case 0:
		return collaborationerrors.ErrStaleVersion
	}
	return nil
}

func (r *redisLockRepository) ListByDashboard(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error) {
	return r.list(ctx, redisLockIndexKey(dashboardID), func(*model.WidgetLock) bool { return true })
}

func (r *redisLockRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.WidgetLock, error) {
	return r.list(ctx, redisAllLocksKey, func(l *model.WidgetLock) bool {
		return l.ExpiresAt.Before(now)
	})
}

func (r *redisLockRepository) DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	deleted, err := deleteIndexedScript.Run(ctx, r.client,
		[]string{redisLockIndexKey(dashboardID), redisAllLocksKey}).Int64()
	if err != nil {
		return 0, transient("failed to delete dashboard widget locks", err)
	}
	return deleted, nil
}

func (r *redisLockRepository) list(ctx context.Context, indexKey string, keep func(*model.WidgetLock) bool) ([]*model.WidgetLock, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	keys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, transient("failed to list widget lock index", err)
	}
	records, err := hgetAll(ctx, r.client, keys)
	if err != nil {
		return nil, transient("failed to load widget locks", err)
	}

	values := make([]model.WidgetLock, 0, len(records))
	for _, fields := range records {
		lock, err := decodeLock(fields)
		if err != nil {
			return nil, transient("failed to decode widget lock", err)
		}
		if keep(lock) {
			values = append(values, *lock)
		}
	}
	return sortedLocks(values), nil
}
