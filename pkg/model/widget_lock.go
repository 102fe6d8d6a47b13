package model

import "time"

// KeySeparator joins the parts of a composite key. IDs must not contain it.
const KeySeparator = ":"

// WidgetLock is an exclusive, time-bounded claim on one widget of a dashboard.
// ExpiresAt is always LastHeartbeat + TTL; it is stored so backends can index it.
type WidgetLock struct {
	Key           string    `bson:"_id" json:"-"`
	LockID        string    `bson:"lock_id" json:"lock_id"`
	DashboardID   string    `bson:"dashboard_id" json:"dashboard_id"`
	WidgetID      string    `bson:"widget_id" json:"widget_id"`
	OwnerUserID   string    `bson:"owner_user_id" json:"owner_user_id"`
	OwnerUserName string    `bson:"owner_user_name" json:"owner_user_name"`
	AcquiredAt    time.Time `bson:"acquired_at" json:"acquired_at"`
	LastHeartbeat time.Time `bson:"last_heartbeat" json:"last_heartbeat"`
	TTLSeconds    int       `bson:"ttl_seconds" json:"ttl_seconds"`
	ExpiresAt     time.Time `bson:"expires_at" json:"expires_at"`
	Version       int64     `bson:"version" json:"-"`
}

func LockKey(dashboardID, widgetID string) string {
	return dashboardID + KeySeparator + widgetID
}

func (l *WidgetLock) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// IsLive reports whether the last heartbeat is within the lock's TTL.
func (l *WidgetLock) IsLive(now time.Time) bool {
	return !Expired(l.LastHeartbeat, l.TTL(), now)
}

// TimeRemaining is zero once the lock has expired.
func (l *WidgetLock) TimeRemaining(now time.Time) time.Duration {
	return Remaining(l.LastHeartbeat, l.TTL(), now)
}

// Touch moves the heartbeat to now and keeps ExpiresAt in step.
func (l *WidgetLock) Touch(now time.Time, ttl time.Duration) {
	l.LastHeartbeat = now
	l.TTLSeconds = int(ttl / time.Second)
	l.ExpiresAt = now.Add(l.TTL())
}

// Expired reports whether more than ttl has passed between last and now.
// Exactly ttl old is still live.
func Expired(last time.Time, ttl time.Duration, now time.Time) bool {
	return now.Sub(last) > ttl
}

func Remaining(last time.Time, ttl time.Duration, now time.Time) time.Duration {
	return max(ttl-now.Sub(last), 0)
}
