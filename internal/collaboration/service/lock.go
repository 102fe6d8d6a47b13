package service

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/internal/collaboration/events"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/internal/collaboration/validator"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"
	"dashcollab/pkg/sanitizer"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AcquireRequest struct {
	DashboardID string
	WidgetID    string
	UserID      string
	UserName    string
	// TTL of zero means the configured default.
	TTL time.Duration
}

// LockConflict describes the live lock that blocked an acquire.
type LockConflict struct {
	OwnerUserID   string
	OwnerUserName string
	AcquiredAt    time.Time
	TimeRemaining time.Duration
}

type AcquireResult struct {
	Outcome  Outcome
	Lock     *model.WidgetLock
	Conflict *LockConflict
}

type LockHeartbeatResult struct {
	Outcome Outcome
	Lock    *model.WidgetLock
	// Owner is set with OutcomeNotOwner.
	Owner *LockConflict
}

type ReleaseResult struct {
	Outcome Outcome
	Owner   *LockConflict
}

type LockStatus struct {
	DashboardID   string
	WidgetID      string
	IsLocked      bool
	LockID        string
	OwnerUserID   string
	OwnerUserName string
	LockedAt      time.Time
	ExpiresAt     time.Time
	TimeRemaining time.Duration
	CanAcquire    bool
}

type LockManager interface {
	Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error)
	Heartbeat(ctx context.Context, dashboardID, widgetID, userID string) (LockHeartbeatResult, error)
	Release(ctx context.Context, dashboardID, widgetID, userID string) (ReleaseResult, error)
	// Status never mutates the store. callerID may be empty.
	Status(ctx context.Context, dashboardID, widgetID, callerID string) (*LockStatus, error)
	ListActive(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error)
}

type lockManager struct {
	repo      repository.LockRepository
	validator *validator.CollaborationValidator
	cfg       *config.Config
	options
}

func NewLockManager(
	repo repository.LockRepository,
	validator *validator.CollaborationValidator,
	cfg *config.Config,
	opts ...Option,
) LockManager {
	return &lockManager{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
		options:   newOptions(opts),
	}
}

// Acquire never hands a live lock from one owner to another. A lock changes
// owner only after the expired record was conditionally deleted and a fresh
// one won the insert race.
func (m *lockManager) Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error) {
	req.UserName = sanitizer.NormalizeName(req.UserName)
	if err := m.validator.ValidateLockTarget(req.DashboardID, req.WidgetID, req.UserID); err != nil {
		return AcquireResult{}, validationError(m.cfg.Log, "Lock validation failed", err)
	}
	if err := m.validator.ValidateLockTTL(req.TTL, m.cfg.LockMinTTL, m.cfg.LockMaxTTL); err != nil {
		return AcquireResult{}, validationError(m.cfg.Log, "Lock validation failed", err)
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = m.cfg.WidgetLockTTL
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := m.now()
		current, err := m.repo.Get(ctx, req.DashboardID, req.WidgetID)
		if err != nil && !errors.Is(err, collaborationerrors.ErrNotFound) {
			return AcquireResult{}, storeError(m.cfg.Log, "read widget lock", err)
		}

		if current != nil && current.IsLive(now) {
			if current.OwnerUserID != req.UserID {
				m.cfg.Log.Debug("Widget lock held by another user",
					"dashboard_id", req.DashboardID,
					"widget_id", req.WidgetID,
					"user_id", req.UserID,
					"owner_user_id", current.OwnerUserID,
				)
				return AcquireResult{Outcome: OutcomeConflict, Conflict: conflictFor(current, now)}, nil
			}

			current.Touch(now, ttl)
			current.OwnerUserName = req.UserName
			err := m.repo.Replace(ctx, current)
			if errors.Is(err, collaborationerrors.ErrStaleVersion) {
				continue
			}
			if err != nil {
				return AcquireResult{}, storeError(m.cfg.Log, "refresh widget lock", err)
			}
			return AcquireResult{Outcome: OutcomeOK, Lock: current}, nil
		}

		if current != nil {
			if err := m.clearExpired(ctx, current, now); err != nil {
				return AcquireResult{}, err
			}
		}

		lock := &model.WidgetLock{
			LockID:        uuid.NewString(),
			DashboardID:   req.DashboardID,
			WidgetID:      req.WidgetID,
			OwnerUserID:   req.UserID,
			OwnerUserName: req.UserName,
			AcquiredAt:    now,
		}
		lock.Touch(now, ttl)

		err = m.repo.Insert(ctx, lock)
		if errors.Is(err, collaborationerrors.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return AcquireResult{}, storeError(m.cfg.Log, "insert widget lock", err)
		}

		m.cfg.Log.Info("Widget lock acquired",
			"dashboard_id", lock.DashboardID,
			"widget_id", lock.WidgetID,
			"user_id", lock.OwnerUserID,
			"lock_id", lock.LockID,
			"ttl", ttl,
		)
		event := events.NewEvent(model.EventLockAcquired, lock.DashboardID, lock.WidgetID, lock.OwnerUserID, lock.OwnerUserName, now)
		event.Data = map[string]any{"lock_id": lock.LockID, "ttl_seconds": lock.TTLSeconds}
		m.publish(ctx, m.cfg.Log, event)
		return AcquireResult{Outcome: OutcomeOK, Lock: lock}, nil
	}

	return AcquireResult{}, storeError(m.cfg.Log, "acquire widget lock",
		fmt.Errorf("%w: %s", collaborationerrors.ErrContention, model.LockKey(req.DashboardID, req.WidgetID)))
}

// clearExpired removes an expired lock if nobody changed it since it was read.
// Losing that race is fine: the caller re-reads on its next attempt.
func (m *lockManager) clearExpired(ctx context.Context, lock *model.WidgetLock, now time.Time) error {
	err := m.repo.DeleteIf(ctx, lock)
	switch {
	case err == nil:
		m.cfg.Log.Info("Expired widget lock cleared",
			"dashboard_id", lock.DashboardID,
			"widget_id", lock.WidgetID,
			"owner_user_id", lock.OwnerUserID,
		)
		event := events.NewEvent(model.EventLockExpired, lock.DashboardID, lock.WidgetID, lock.OwnerUserID, lock.OwnerUserName, now)
		event.Data = map[string]any{"lock_id": lock.LockID}
		m.publish(ctx, m.cfg.Log, event)
		return nil
	case errors.Is(err, collaborationerrors.ErrStaleVersion), errors.Is(err, collaborationerrors.ErrNotFound):
		return nil
	default:
		return storeError(m.cfg.Log, "delete expired widget lock", err)
	}
}

func (m *lockManager) Heartbeat(ctx context.Context, dashboardID, widgetID, userID string) (LockHeartbeatResult, error) {
	if err := m.validator.ValidateLockTarget(dashboardID, widgetID, userID); err != nil {
		return LockHeartbeatResult{}, validationError(m.cfg.Log, "Lock validation failed", err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := m.now()
		current, err := m.repo.Get(ctx, dashboardID, widgetID)
		if errors.Is(err, collaborationerrors.ErrNotFound) {
			return LockHeartbeatResult{Outcome: OutcomeNotFound}, nil
		}
		if err != nil {
			return LockHeartbeatResult{}, storeError(m.cfg.Log, "read widget lock", err)
		}
		if !current.IsLive(now) {
			return LockHeartbeatResult{Outcome: OutcomeNotFound}, nil
		}
		if current.OwnerUserID != userID {
			return LockHeartbeatResult{Outcome: OutcomeNotOwner, Owner: conflictFor(current, now)}, nil
		}

		current.Touch(now, current.TTL())
		err = m.repo.Replace(ctx, current)
		if errors.Is(err, collaborationerrors.ErrStaleVersion) {
			continue
		}
		if err != nil {
			return LockHeartbeatResult{}, storeError(m.cfg.Log, "refresh widget lock", err)
		}
		return LockHeartbeatResult{Outcome: OutcomeOK, Lock: current}, nil
	}

	return LockHeartbeatResult{}, storeError(m.cfg.Log, "refresh widget lock",
		fmt.Errorf("%w: %s", collaborationerrors.ErrContention, model.LockKey(dashboardID, widgetID)))
}

func (m *lockManager) Release(ctx context.Context, dashboardID, widgetID, userID string) (ReleaseResult, error) {
	if err := m.validator.ValidateLockTarget(dashboardID, widgetID, userID); err != nil {
		return ReleaseResult{}, validationError(m.cfg.Log, "Lock validation failed", err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := m.now()
		current, err := m.repo.Get(ctx, dashboardID, widgetID)
		if errors.Is(err, collaborationerrors.ErrNotFound) {
			return ReleaseResult{Outcome: OutcomeOK}, nil
		}
		if err != nil {
			return ReleaseResult{}, storeError(m.cfg.Log, "read widget lock", err)
		}
		// Expired locks are left to the reaper.
		if !current.IsLive(now) {
			return ReleaseResult{Outcome: OutcomeOK}, nil
		}
		if current.OwnerUserID != userID {
			return ReleaseResult{Outcome: OutcomeNotOwner, Owner: conflictFor(current, now)}, nil
		}

		err = m.repo.DeleteIf(ctx, current)
		if errors.Is(err, collaborationerrors.ErrNotFound) {
			return ReleaseResult{Outcome: OutcomeOK}, nil
		}
		if errors.Is(err, collaborationerrors.ErrStaleVersion) {
			continue
		}
		if err != nil {
			return ReleaseResult{}, storeError(m.cfg.Log, "release widget lock", err)
		}

		m.cfg.Log.Info("Widget lock released",
			"dashboard_id", dashboardID,
			"widget_id", widgetID,
			"user_id", userID,
			"lock_id", current.LockID,
		)
		event := events.NewEvent(model.EventLockReleased, dashboardID, widgetID, userID, current.OwnerUserName, now)
		event.Data = map[string]any{"lock_id": current.LockID, "held_for_seconds": int(now.Sub(current.AcquiredAt) / time.Second)}
		m.publish(ctx, m.cfg.Log, event)
		return ReleaseResult{Outcome: OutcomeOK}, nil
	}

	return ReleaseResult{}, storeError(m.cfg.Log, "release widget lock",
		fmt.Errorf("%w: %s", collaborationerrors.ErrContention, model.LockKey(dashboardID, widgetID)))
}

func (m *lockManager) Status(ctx context.Context, dashboardID, widgetID, callerID string) (*LockStatus, error) {
	if err := m.validator.ValidateWidgetTarget(dashboardID, widgetID); err != nil {
		return nil, validationError(m.cfg.Log, "Lock validation failed", err)
	}

	status := &LockStatus{DashboardID: dashboardID, WidgetID: widgetID, CanAcquire: true}
	lock, err := m.repo.Get(ctx, dashboardID, widgetID)
	if errors.Is(err, collaborationerrors.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, storeError(m.cfg.Log, "read widget lock", err)
	}

	now := m.now()
	if !lock.IsLive(now) {
		return status, nil
	}

	status.IsLocked = true
	status.LockID = lock.LockID
	status.OwnerUserID = lock.OwnerUserID
	status.OwnerUserName = lock.OwnerUserName
	status.LockedAt = lock.AcquiredAt
	status.ExpiresAt = lock.ExpiresAt
	status.TimeRemaining = lock.TimeRemaining(now)
	status.CanAcquire = callerID != "" && lock.OwnerUserID == callerID
	return status, nil
}

func (m *lockManager) ListActive(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error) {
	if err := m.validator.ValidateDashboardID(dashboardID); err != nil {
		return nil, validationError(m.cfg.Log, "Dashboard validation failed", err)
	}

	locks, err := m.repo.ListByDashboard(ctx, dashboardID)
	if err != nil {
		return nil, storeError(m.cfg.Log, "list widget locks", err)
	}

	now := m.now()
	active := make([]*model.WidgetLock, 0, len(locks))
	for _, lock := range locks {
		if lock.IsLive(now) {
			active = append(active, lock)
		}
	}
	return active, nil
}

func conflictFor(lock *model.WidgetLock, now time.Time) *LockConflict {
	return &LockConflict{
		OwnerUserID:   lock.OwnerUserID,
		OwnerUserName: lock.OwnerUserName,
		AcquiredAt:    lock.AcquiredAt,
		TimeRemaining: lock.TimeRemaining(now),
	}
}

