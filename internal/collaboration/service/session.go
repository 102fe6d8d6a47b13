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
)

type SessionHeartbeatResult struct {
	Outcome Outcome
	Session *model.EditingSession
}

type SessionRegistry interface {
	// Start creates the session or refreshes an existing one, live or not.
	Start(ctx context.Context, start model.SessionStart) (*model.EditingSession, error)
	// Heartbeat answers OutcomeNotFound once the session has been stopped or reaped.
	Heartbeat(ctx context.Context, dashboardID, userID string) (SessionHeartbeatResult, error)
	// Stop succeeds whether or not the session exists.
	Stop(ctx context.Context, dashboardID, userID string) error
	ListActive(ctx context.Context, dashboardID string) ([]*model.EditingSession, error)
}

type sessionRegistry struct {
	repo      repository.SessionRepository
	validator *validator.CollaborationValidator
	cfg       *config.Config
	options
}

func NewSessionRegistry(
	repo repository.SessionRepository,
	validator *validator.CollaborationValidator,
	cfg *config.Config,
	opts ...Option,
) SessionRegistry {
	return &sessionRegistry{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
		options:   newOptions(opts),
	}
}

func (s *sessionRegistry) Start(ctx context.Context, start model.SessionStart) (*model.EditingSession, error) {
	start.UserName = sanitizer.NormalizeName(start.UserName)
	start.UserEmail = sanitizer.NormalizeEmail(start.UserEmail)
	start.ClientInfo = sanitizer.SanitizeClientInfo(start.ClientInfo)
	if err := s.validator.ValidateSessionStart(&start); err != nil {
		return nil, validationError(s.cfg.Log, "Session validation failed", err)
	}

	now := s.now()
	session, err := s.repo.Upsert(ctx, start, now)
	if err != nil {
		return nil, storeError(s.cfg.Log, "start editing session", err)
	}

	if session.Version == 1 {
		s.cfg.Log.Info("Editing session started",
			"dashboard_id", session.DashboardID,
			"user_id", session.UserID,
			"session_id", session.SessionID,
		)
		event := events.NewEvent(model.EventSessionStarted, session.DashboardID, "", session.UserID, session.UserName, now)
		event.Data = map[string]any{"session_id": session.SessionID}
		s.publish(ctx, s.cfg.Log, event)
	} else {
		s.cfg.Log.Debug("Editing session refreshed", "dashboard_id", session.DashboardID, "user_id", session.UserID)
	}
	return session, nil
}

func (s *sessionRegistry) Heartbeat(ctx context.Context, dashboardID, userID string) (SessionHeartbeatResult, error) {
	if err := s.validator.ValidateSessionTarget(dashboardID, userID); err != nil {
		return SessionHeartbeatResult{}, validationError(s.cfg.Log, "Session validation failed", err)
	}

	session, err := s.repo.Touch(ctx, dashboardID, userID, s.now())
	if err != nil {
		if errors.Is(err, collaborationerrors.ErrNotFound) {
			s.cfg.Log.Debug("Heartbeat for unknown editing session", "dashboard_id", dashboardID, "user_id", userID)
			return SessionHeartbeatResult{Outcome: OutcomeNotFound}, nil
		}
		return SessionHeartbeatResult{}, storeError(s.cfg.Log, "refresh editing session", err)
	}
	return SessionHeartbeatResult{Outcome: OutcomeOK, Session: session}, nil
}

func (s *sessionRegistry) Stop(ctx context.Context, dashboardID, userID string) error {
	if err := s.validator.ValidateSessionTarget(dashboardID, userID); err != nil {
		return validationError(s.cfg.Log, "Session validation failed", err)
	}

	deleted, err := s.repo.Delete(ctx, dashboardID, userID)
	if err != nil {
		return storeError(s.cfg.Log, "stop editing session", err)
	}
	if deleted {
		s.cfg.Log.Info("Editing session stopped", "dashboard_id", dashboardID, "user_id", userID)
		s.publish(ctx, s.cfg.Log, events.NewEvent(model.EventSessionStopped, dashboardID, "", userID, "", s.now()))
	}
	return nil
}

func (s *sessionRegistry) ListActive(ctx context.Context, dashboardID string) ([]*model.EditingSession, error) {
	if err := s.validator.ValidateDashboardID(dashboardID); err != nil {
		return nil, validationError(s.cfg.Log, "Dashboard validation failed", err)
	}

	sessions, err := s.repo.ListByDashboard(ctx, dashboardID)
	if err != nil {
		return nil, storeError(s.cfg.Log, "list editing sessions", err)
	}

	now := s.now()
	active := make([]*model.EditingSession, 0, len(sessions))
	for _, session := range sessions {
		if session.IsLive(now, s.cfg.SessionTTL) {
			active = append(active, session)
		}
	}
	return active, nil
}
