package model

import "time"

// EditingSession is a user's live claim to be viewing or editing a dashboard.
// There is at most one per (DashboardID, UserID).
type EditingSession struct {
	Key          string            `bson:"_id" json:"-"`
	SessionID    string            `bson:"session_id" json:"session_id"`
	DashboardID  string            `bson:"dashboard_id" json:"dashboard_id"`
	UserID       string            `bson:"user_id" json:"user_id"`
	UserName     string            `bson:"user_name" json:"user_name"`
	UserEmail    string            `bson:"user_email,omitempty" json:"user_email,omitempty"`
	ClientInfo   map[string]string `bson:"client_info,omitempty" json:"client_info,omitempty"`
	ConnectedAt  time.Time         `bson:"connected_at" json:"connected_at"`
	LastActivity time.Time         `bson:"last_activity" json:"last_activity"`
	Version      int64             `bson:"version" json:"-"`
}

// SessionStart carries everything a start call may set on a session.
type SessionStart struct {
	DashboardID string
	UserID      string
	UserName    string
	UserEmail   string
	ClientInfo  map[string]string
}

func SessionKey(dashboardID, userID string) string {
	return dashboardID + KeySeparator + userID
}

// IsLive reports whether the session has seen activity within ttl of now.
func (s *EditingSession) IsLive(now time.Time, ttl time.Duration) bool {
	return !Expired(s.LastActivity, ttl, now)
}
