package repository

import (
	"context"
	"fmt"
	"time"

	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/model"
)

// LockRepository stores widget locks. Every mutation is a single atomic
// conditional write against the record's version, so callers can build
// compare-and-swap loops on top of it.
type LockRepository interface {
	// Get returns ErrNotFound when no record exists, expired or not.
	Get(ctx context.Context, dashboardID, widgetID string) (*model.WidgetLock, error)
	// Insert creates the record only if the key is absent, otherwise ErrAlreadyExists.
	Insert(ctx context.Context, lock *model.WidgetLock) error
	// Replace overwrites the record only if its stored version and LockID still
	// equal lock's, otherwise ErrStaleVersion. On success lock.Version is bumped.
	// Matching LockID keeps a record re-created after a delete from passing for
	// the old one, since versions restart at 1.
	Replace(ctx context.Context, lock *model.WidgetLock) error
	// DeleteIf removes the record only if its version and LockID equal lock's.
	// ErrStaleVersion when it changed, ErrNotFound when it is already gone.
	DeleteIf(ctx context.Context, lock *model.WidgetLock) error
	ListByDashboard(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error)
	// ListExpired returns records whose ExpiresAt is before now.
	ListExpired(ctx context.Context, now time.Time) ([]*model.WidgetLock, error)
	DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error)
}

// SessionRepository stores dashboard editing sessions.
type SessionRepository interface {
	// Upsert creates the session or refreshes LastActivity of an existing one,
	// keeping SessionID and ConnectedAt.
	Upsert(ctx context.Context, start model.SessionStart, now time.Time) (*model.EditingSession, error)
	// Touch refreshes LastActivity, ErrNotFound if the session is gone.
	Touch(ctx context.Context, dashboardID, userID string, now time.Time) (*model.EditingSession, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, dashboardID, userID string) (bool, error)
	// DeleteIf has the same contract as LockRepository.DeleteIf, matching on
	// SessionID instead of LockID.
	DeleteIf(ctx context.Context, session *model.EditingSession) error
	// ListByDashboard orders by ConnectedAt ascending.
	ListByDashboard(ctx context.Context, dashboardID string) ([]*model.EditingSession, error)
	// ListStale returns sessions whose LastActivity is before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*model.EditingSession, error)
	DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error)
}

// EventRepository keeps the collaboration audit trail.
type EventRepository interface {
	Save(ctx context.Context, event *model.CollaborationEvent) error
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, collaborationerrors.ErrTransient, err)
}

// withTimeout bounds a single store round trip without extending a shorter caller deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}

	return context.WithTimeout(ctx, timeout)
}
