package service

import (
	"context"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/internal/collaboration/validator"
	"dashcollab/pkg/config"
)

type PurgeResult struct {
	DashboardID     string
	DeletedSessions int64
	DeletedLocks    int64
}

// DashboardPurger drops all coordination state of a dashboard that no longer exists.
type DashboardPurger interface {
	Purge(ctx context.Context, dashboardID string) (*PurgeResult, error)
}

type dashboardPurger struct {
	sessions  repository.SessionRepository
	locks     repository.LockRepository
	validator *validator.CollaborationValidator
	cfg       *config.Config
}

func NewDashboardPurger(
	sessions repository.SessionRepository,
	locks repository.LockRepository,
	validator *validator.CollaborationValidator,
	cfg *config.Config,
) DashboardPurger {
	return &dashboardPurger{
		sessions:  sessions,
		locks:     locks,
		validator: validator,
		cfg:       cfg,
	}
}

func (p *dashboardPurger) Purge(ctx context.Context, dashboardID string) (*PurgeResult, error) {
	if err := p.validator.ValidateDashboardID(dashboardID); err != nil {
		return nil, validationError(p.cfg.Log, "Dashboard validation failed", err)
	}

	result := &PurgeResult{DashboardID: dashboardID}
	var err error
	if result.DeletedLocks, err = p.locks.DeleteByDashboard(ctx, dashboardID); err != nil {
		return nil, storeError(p.cfg.Log, "purge dashboard widget locks", err)
	}
	if result.DeletedSessions, err = p.sessions.DeleteByDashboard(ctx, dashboardID); err != nil {
		return nil, storeError(p.cfg.Log, "purge dashboard editing sessions", err)
	}

	p.cfg.Log.Info("Dashboard coordination state purged",
		"dashboard_id", dashboardID,
		"deleted_sessions", result.DeletedSessions,
		"deleted_locks", result.DeletedLocks,
	)
	return result, nil
}
