package reaper

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/internal/collaboration/events"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"
	"errors"
	"fmt"
	"sync"
	"time"
)

const publishTimeout = 5 * time.Second

type SweepResult struct {
	ExpiredSessions int `json:"expired_sessions"`
	ExpiredLocks    int `json:"expired_locks"`
}

type Option func(*Reaper)

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(r *Reaper) {
		r.publisher = publisher
	}
}

// Reaper deletes sessions and locks whose heartbeats stopped. Every delete is
// conditional on the version that was read, so an entity refreshed between
// the scan and the delete survives.
type Reaper struct {
	sessions  repository.SessionRepository
	locks     repository.LockRepository
	cfg       *config.Config
	now       func() time.Time
	publisher events.Publisher

	mu     sync.Mutex
	sweep  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReaper(sessions repository.SessionRepository, locks repository.LockRepository, cfg *config.Config, opts ...Option) *Reaper {
	r := &Reaper{
		sessions:  sessions,
		locks:     locks,
		cfg:       cfg,
		now:       time.Now,
		publisher: events.NewNoopPublisher(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs a sweep every cfg.ReaperPeriod until ctx is done or Stop is called.
// Calling Start on a running reaper is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop(ctx)

	r.cfg.Log.Info("Reaper started", "period", r.cfg.ReaperPeriod)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()

	r.cfg.Log.Info("Reaper stopped")
}

func (r *Reaper) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReaperPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Failures were logged by RunOnce and are retried on the next tick.
			_, _ = r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep. Sweeps never overlap.
func (r *Reaper) RunOnce(ctx context.Context) (SweepResult, error) {
	r.sweep.Lock()
	defer r.sweep.Unlock()

	start := time.Now()
	now := r.now()

	var result SweepResult
	var errs []error

	expiredSessions, err := r.reapSessions(ctx, now)
	result.ExpiredSessions = expiredSessions
	if err != nil {
		errs = append(errs, err)
	}

	expiredLocks, err := r.reapLocks(ctx, now)
	result.ExpiredLocks = expiredLocks
	if err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		r.cfg.Log.Error("Reaper sweep incomplete",
			"expired_sessions", result.ExpiredSessions,
			"expired_locks", result.ExpiredLocks,
			"error", err,
		)
		return result, err
	}

	if result.ExpiredSessions > 0 || result.ExpiredLocks > 0 {
		r.cfg.Log.Info("Reaper sweep finished",
			"expired_sessions", result.ExpiredSessions,
			"expired_locks", result.ExpiredLocks,
			"duration", time.Since(start),
		)
	} else {
		r.cfg.Log.Debug("Reaper sweep finished", "duration", time.Since(start))
	}
	return result, nil
}

func (r *Reaper) reapSessions(ctx context.Context, now time.Time) (int, error) {
	stale, err := r.sessions.ListStale(ctx, now.Add(-r.cfg.SessionTTL))
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}

	var errs []error
	reaped := 0
	for _, session := range stale {
		if session.IsLive(now, r.cfg.SessionTTL) {
			continue
		}
		ok, err := deleteOutcome(r.sessions.DeleteIf(ctx, session))
		if err != nil {
			errs = append(errs, fmt.Errorf("delete session %s: %w", model.SessionKey(session.DashboardID, session.UserID), err))
			continue
		}
		if !ok {
			continue
		}

		reaped++
		r.cfg.Log.Info("Expired editing session reaped",
			"dashboard_id", session.DashboardID,
			"user_id", session.UserID,
			"last_activity", session.LastActivity,
		)
		event := events.NewEvent(model.EventSessionExpired, session.DashboardID, "", session.UserID, session.UserName, now)
		event.Data = map[string]any{"session_id": session.SessionID}
		r.publish(ctx, event)
	}
	return reaped, errors.Join(errs...)
}

func (r *Reaper) reapLocks(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.locks.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired locks: %w", err)
	}

	var errs []error
	reaped := 0
	for _, lock := range expired {
		if lock.IsLive(now) {
			continue
		}
		ok, err := deleteOutcome(r.locks.DeleteIf(ctx, lock))
		if err != nil {
			errs = append(errs, fmt.Errorf("delete lock %s: %w", model.LockKey(lock.DashboardID, lock.WidgetID), err))
			continue
		}
		if !ok {
			continue
		}

		reaped++
		r.cfg.Log.Info("Expired widget lock reaped",
			"dashboard_id", lock.DashboardID,
			"widget_id", lock.WidgetID,
			"owner_user_id", lock.OwnerUserID,
			"last_heartbeat", lock.LastHeartbeat,
		)
		event := events.NewEvent(model.EventLockExpired, lock.DashboardID, lock.WidgetID, lock.OwnerUserID, lock.OwnerUserName, now)
		event.Data = map[string]any{"lock_id": lock.LockID}
		r.publish(ctx, event)
	}
	return reaped, errors.Join(errs...)
}

// deleteOutcome treats a lost race as a skipped record: the entity was refreshed
// or removed by someone else after it was listed.
func deleteOutcome(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, collaborationerrors.ErrStaleVersion), errors.Is(err, collaborationerrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (r *Reaper) publish(ctx context.Context, event *model.CollaborationEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, event); err != nil {
		r.cfg.Log.Warn("Failed to publish collaboration event",
			"event_type", event.EventType,
			"dashboard_id", event.DashboardID,
			"error", err,
		)
	}
}
