package handler

import (
	"dashcollab/internal/collaboration/service"
	"dashcollab/pkg/model"
	"time"
)

type startSessionRequest struct {
	UserEmail  string            `json:"user_email,omitempty"`
	ClientInfo map[string]string `json:"client_info,omitempty"`
}

type acquireLockRequest struct {
	// LockDuration is in seconds. Zero means the configured default.
	LockDuration int `json:"lock_duration,omitempty"`
}

type sessionResponse struct {
	SessionID     string            `json:"session_id"`
	DashboardID   string            `json:"dashboard_id"`
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name"`
	UserEmail     string            `json:"user_email,omitempty"`
	ClientInfo    map[string]string `json:"client_info,omitempty"`
	ConnectedAt   time.Time         `json:"connected_at"`
	LastActivity  time.Time         `json:"last_activity"`
	LockedWidgets []string          `json:"locked_widgets,omitempty"`
}

type lockResponse struct {
	LockID        string    `json:"lock_id"`
	DashboardID   string    `json:"dashboard_id"`
	WidgetID      string    `json:"widget_id"`
	OwnerUserID   string    `json:"owner_user_id"`
	OwnerUserName string    `json:"owner_user_name"`
	LockedAt      time.Time `json:"locked_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ExpiresAt     time.Time `json:"expires_at"`
	TTLSeconds    int       `json:"ttl_seconds"`
	TimeRemaining float64   `json:"time_remaining"`
}

type lockStatusResponse struct {
	DashboardID    string     `json:"dashboard_id"`
	WidgetID       string     `json:"widget_id"`
	IsLocked       bool       `json:"is_locked"`
	LockID         string     `json:"lock_id,omitempty"`
	LockedByUserID string     `json:"locked_by_user_id,omitempty"`
	LockedBy       string     `json:"locked_by,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TimeRemaining  *float64   `json:"time_remaining,omitempty"`
	CanAcquire     bool       `json:"can_acquire"`
}

type presenceResponse struct {
	DashboardID    string            `json:"dashboard_id"`
	ActiveSessions []sessionResponse `json:"active_sessions"`
	TotalSessions  int               `json:"total_sessions"`
	WidgetLocks    []lockResponse    `json:"widget_locks"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

type cleanupResponse struct {
	CleanedSessions int    `json:"cleaned_sessions"`
	CleanedLocks    int    `json:"cleaned_locks"`
	Message         string `json:"message"`
}

func toSessionResponse(s *model.EditingSession, lockedWidgets []string) sessionResponse {
	return sessionResponse{
		SessionID:     s.SessionID,
		DashboardID:   s.DashboardID,
		UserID:        s.UserID,
		UserName:      s.UserName,
		UserEmail:     s.UserEmail,
		ClientInfo:    s.ClientInfo,
		ConnectedAt:   s.ConnectedAt,
		LastActivity:  s.LastActivity,
		LockedWidgets: lockedWidgets,
	}
}

func toLockResponse(l *model.WidgetLock, now time.Time) lockResponse {
	return lockResponse{
		LockID:        l.LockID,
		DashboardID:   l.DashboardID,
		WidgetID:      l.WidgetID,
		OwnerUserID:   l.OwnerUserID,
		OwnerUserName: l.OwnerUserName,
		LockedAt:      l.AcquiredAt,
		LastHeartbeat: l.LastHeartbeat,
		ExpiresAt:     l.ExpiresAt,
		TTLSeconds:    l.TTLSeconds,
		TimeRemaining: l.TimeRemaining(now).Seconds(),
	}
}

func toLockStatusResponse(s *service.LockStatus) lockStatusResponse {
	resp := lockStatusResponse{
		DashboardID: s.DashboardID,
		WidgetID:    s.WidgetID,
		IsLocked:    s.IsLocked,
		CanAcquire:  s.CanAcquire,
	}
	if !s.IsLocked {
		return resp
	}

	remaining := s.TimeRemaining.Seconds()
	resp.LockID = s.LockID
	resp.LockedByUserID = s.OwnerUserID
	resp.LockedBy = s.OwnerUserName
	resp.LockedAt = &s.LockedAt
	resp.ExpiresAt = &s.ExpiresAt
	resp.TimeRemaining = &remaining
	return resp
}

// toPresenceResponse attaches to each session the widgets its user holds.
func toPresenceResponse(p *service.Presence) presenceResponse {
	held := make(map[string][]string)
	locks := make([]lockResponse, 0, len(p.Locks))
	for _, lock := range p.Locks {
		held[lock.OwnerUserID] = append(held[lock.OwnerUserID], lock.WidgetID)
		locks = append(locks, toLockResponse(lock, p.GeneratedAt))
	}

	sessions := make([]sessionResponse, 0, len(p.Sessions))
	for _, session := range p.Sessions {
		sessions = append(sessions, toSessionResponse(session, held[session.UserID]))
	}

	return presenceResponse{
		DashboardID:    p.DashboardID,
		ActiveSessions: sessions,
		TotalSessions:  len(sessions),
		WidgetLocks:    locks,
		GeneratedAt:    p.GeneratedAt,
	}
}

func conflictDetails(c *service.LockConflict) map[string]any {
	return map[string]any{
		"locked_by_user_id": c.OwnerUserID,
		"locked_by":         c.OwnerUserName,
		"locked_at":         c.AcquiredAt,
		"time_remaining":    c.TimeRemaining.Seconds(),
	}
}
