package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/model"
	"sort"
	"time"
)

type memoryLockRepository struct {
	locks *shardedMap[model.WidgetLock]
}

// NewMemoryLockRepository keeps locks in process memory. Only safe when a
// single service instance owns the coordination state.
func NewMemoryLockRepository() LockRepository {
	return &memoryLockRepository{locks: newShardedMap[model.WidgetLock]()}
}

func (r *memoryLockRepository) Get(_ context.Context, dashboardID, widgetID string) (*model.WidgetLock, error) {
	key := model.LockKey(dashboardID, widgetID)
	s := r.locks.shardFor(key)

	s.mu.RLock()
	lock, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, collaborationerrors.ErrNotFound
	}
	return &lock, nil
}

func (r *memoryLockRepository) Insert(_ context.Context, lock *model.WidgetLock) error {
	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)
	s := r.locks.shardFor(lock.Key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[lock.Key]; ok {
		return collaborationerrors.ErrAlreadyExists
	}
	lock.Version = 1
	s.items[lock.Key] = *lock
	return nil
}

func (r *memoryLockRepository) Replace(_ context.Context, lock *model.WidgetLock) error {
	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)
	s := r.locks.shardFor(lock.Key)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[lock.Key]
	if !ok || current.Version != lock.Version || current.LockID != lock.LockID {
		return collaborationerrors.ErrStaleVersion
	}
	lock.Version++
	s.items[lock.Key] = *lock
	return nil
}

func (r *memoryLockRepository) DeleteIf(_ context.Context, lock *model.WidgetLock) error {
	key := model.LockKey(lock.DashboardID, lock.WidgetID)
	s := r.locks.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[key]
	if !ok {
		return collaborationerrors.ErrNotFound
	}
	if current.Version != lock.Version || current.LockID != lock.LockID {
		return collaborationerrors.ErrStaleVersion
	}
	delete(s.items, key)
	return nil
}

func (r *memoryLockRepository) ListByDashboard(_ context.Context, dashboardID string) ([]*model.WidgetLock, error) {
	return sortedLocks(r.locks.collect(func(l model.WidgetLock) bool {
		return l.DashboardID == dashboardID
	})), nil
}

func (r *memoryLockRepository) ListExpired(_ context.Context, now time.Time) ([]*model.WidgetLock, error) {
	return sortedLocks(r.locks.collect(func(l model.WidgetLock) bool {
		return l.ExpiresAt.Before(now)
	})), nil
}

func (r *memoryLockRepository) DeleteByDashboard(_ context.Context, dashboardID string) (int64, error) {
	return r.locks.deleteWhere(func(l model.WidgetLock) bool {
		return l.DashboardID == dashboardID
	}), nil
}

func sortedLocks(values []model.WidgetLock) []*model.WidgetLock {
	locks := make([]*model.WidgetLock, len(values))
	for i := range values {
		locks[i] = &values[i]
	}
	sort.Slice(locks, func(i, j int) bool {
		if !locks[i].AcquiredAt.Equal(locks[j].AcquiredAt) {
			return locks[i].AcquiredAt.Before(locks[j].AcquiredAt)
		}
		return locks[i].Key < locks[j].Key
	})
	return locks
}
