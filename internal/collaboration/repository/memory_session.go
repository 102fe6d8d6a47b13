package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/model"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"
)

type memorySessionRepository struct {
	sessions *shardedMap[model.EditingSession]
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: newShardedMap[model.EditingSession]()}
}

func (r *memorySessionRepository) Upsert(_ context.Context, start model.SessionStart, now time.Time) (*model.EditingSession, error) {
	key := model.SessionKey(start.DashboardID, start.UserID)
	s := r.sessions.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.items[key]
	if !ok {
		session = model.EditingSession{
			Key:         key,
			SessionID:   uuid.NewString(),
			DashboardID: start.DashboardID,
			UserID:      start.UserID,
			ConnectedAt: now,
		}
	}
	session.UserName = start.UserName
	if start.UserEmail != "" {
		session.UserEmail = start.UserEmail
	}
	if len(start.ClientInfo) > 0 {
		session.ClientInfo = maps.Clone(start.ClientInfo)
	}
	session.LastActivity = now
	session.Version++
	s.items[key] = session

	return cloneSession(session), nil
}

func (r *memorySessionRepository) Touch(_ context.Context, dashboardID, userID string, now time.Time) (*model.EditingSession, error) {
	key := model.SessionKey(dashboardID, userID)
	s := r.sessions.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.items[key]
	if !ok {
		return nil, collaborationerrors.ErrNotFound
	}
	session.LastActivity = now
	session.Version++
	s.items[key] = session

	return cloneSession(session), nil
}

func (r *memorySessionRepository) Delete(_ context.Context, dashboardID, userID string) (bool, error) {
	key := model.SessionKey(dashboardID, userID)
	s := r.sessions.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (r *memorySessionRepository) DeleteIf(_ context.Context, session *model.EditingSession) error {
	key := model.SessionKey(session.DashboardID, session.UserID)
	s := r.sessions.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[key]
	if !ok {
		return collaborationerrors.ErrNotFound
	}
	if current.Version != session.Version || current.SessionID != session.SessionID {
		return collaborationerrors.ErrStaleVersion
	}
	delete(s.items, key)
	return nil
}

func (r *memorySessionRepository) ListByDashboard(_ context.Context, dashboardID string) ([]*model.EditingSession, error) {
	return sortedSessions(r.sessions.collect(func(s model.EditingSession) bool {
		return s.DashboardID == dashboardID
	})), nil
}

func (r *memorySessionRepository) ListStale(_ context.Context, cutoff time.Time) ([]*model.EditingSession, error) {
	return sortedSessions(r.sessions.collect(func(s model.EditingSession) bool {
		return s.LastActivity.Before(cutoff)
	})), nil
}

func (r *memorySessionRepository) DeleteByDashboard(_ context.Context, dashboardID string) (int64, error) {
	return r.sessions.deleteWhere(func(s model.EditingSession) bool {
		return s.DashboardID == dashboardID
	}), nil
}

func cloneSession(s model.EditingSession) *model.EditingSession {
	s.ClientInfo = maps.Clone(s.ClientInfo)
	return &s
}

func sortedSessions(values []model.EditingSession) []*model.EditingSession {
	sessions := make([]*model.EditingSession, len(values))
	for i := range values {
		sessions[i] = cloneSession(values[i])
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].ConnectedAt.Equal(sessions[j].ConnectedAt) {
			return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
		}
		return sessions[i].UserID < sessions[j].UserID
	})
	return sessions
}
