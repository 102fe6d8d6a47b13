package model

import "time"

type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionStopped EventType = "session_stopped"
	EventSessionExpired EventType = "session_expired"
	EventLockAcquired   EventType = "lock_acquired"
	EventLockReleased   EventType = "lock_released"
	EventLockExpired    EventType = "lock_expired"
)

// CollaborationEvent is the audit record of a session or lock state change.
type CollaborationEvent struct {
	EventID     string         `bson:"_id" json:"event_id"`
	EventType   EventType      `bson:"event_type" json:"event_type"`
	DashboardID string         `bson:"dashboard_id" json:"dashboard_id"`
	WidgetID    string         `bson:"widget_id,omitempty" json:"widget_id,omitempty"`
	UserID      string         `bson:"user_id" json:"user_id"`
	UserName    string         `bson:"user_name" json:"user_name"`
	Data        map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
}
