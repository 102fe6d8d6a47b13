package repository

import (
	"context"
	"dashcollab/pkg/model"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "collab"

func redisLockKey(dashboardID, widgetID string) string {
	return redisKeyPrefix + ":lock:" + model.LockKey(dashboardID, widgetID)
}

func redisLockIndexKey(dashboardID string) string {
	return redisKeyPrefix + ":dashboard:" + dashboardID + ":locks"
}

func redisSessionKey(dashboardID, userID string) string {
	return redisKeyPrefix + ":session:" + model.SessionKey(dashboardID, userID)
}

func redisSessionIndexKey(dashboardID string) string {
	return redisKeyPrefix + ":dashboard:" + dashboardID + ":sessions"
}

const (
	redisAllLocksKey    = redisKeyPrefix + ":locks"
	redisAllSessionsKey = redisKeyPrefix + ":sessions"
)

// Times are stored as unix nanoseconds so they survive the round trip exactly.
func encodeTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func decodeTime(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func lockFields(l *model.WidgetLock) []any {
	return []any{
		"lock_id", l.LockID,
		"dashboard_id", l.DashboardID,
		"widget_id", l.WidgetID,
		"owner_user_id", l.OwnerUserID,
		"owner_user_name", l.OwnerUserName,
		"acquired_at", encodeTime(l.AcquiredAt),
		"last_heartbeat", encodeTime(l.LastHeartbeat),
		"ttl_seconds", strconv.Itoa(l.TTLSeconds),
		"expires_at", encodeTime(l.ExpiresAt),
		"version", strconv.FormatInt(l.Version, 10),
	}
}

func decodeLock(fields map[string]string) (*model.WidgetLock, error) {
	lock := &model.WidgetLock{
		LockID:        fields["lock_id"],
		DashboardID:   fields["dashboard_id"],
		WidgetID:      fields["widget_id"],
		OwnerUserID:   fields["owner_user_id"],
		OwnerUserName: fields["owner_user_name"],
	}
	lock.Key = model.LockKey(lock.DashboardID, lock.WidgetID)

	var err error
	if lock.AcquiredAt, err = decodeTime(fields["acquired_at"]); err != nil {
		return nil, fmt.Errorf("acquired_at: %w", err)
	}
	if lock.LastHeartbeat, err = decodeTime(fields["last_heartbeat"]); err != nil {
		return nil, fmt.Errorf("last_heartbeat: %w", err)
	}
	if lock.ExpiresAt, err = decodeTime(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	if lock.TTLSeconds, err = strconv.Atoi(fields["ttl_seconds"]); err != nil {
		return nil, fmt.Errorf("ttl_seconds: %w", err)
	}
	if lock.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	return lock, nil
}

func decodeSession(fields map[string]string) (*model.EditingSession, error) {
	session := &model.EditingSession{
		SessionID:   fields["session_id"],
		DashboardID: fields["dashboard_id"],
		UserID:      fields["user_id"],
		UserName:    fields["user_name"],
		UserEmail:   fields["user_email"],
	}
	session.Key = model.SessionKey(session.DashboardID, session.UserID)

	var err error
	if session.ConnectedAt, err = decodeTime(fields["connected_at"]); err != nil {
		return nil, fmt.Errorf("connected_at: %w", err)
	}
	if session.LastActivity, err = decodeTime(fields["last_activity"]); err != nil {
		return nil, fmt.Errorf("last_activity: %w", err)
	}
	if session.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if raw := fields["client_info"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &session.ClientInfo); err != nil {
			return nil, fmt.Errorf("client_info: %w", err)
		}
	}
	return session, nil
}

// pairsToMap turns a flat HGETALL script reply into a field map.
func pairsToMap(reply []any) map[string]string {
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		fields[k] = v
	}
	return fields
}

// hgetAll loads many hashes in one pipeline. Keys whose hash is gone are skipped.
func hgetAll(ctx context.Context, client *redis.Client, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(cmds))
	for _, cmd := range cmds {
		if fields := cmd.Val(); len(fields) > 0 {
			out = append(out, fields)
		}
	}
	return out, nil
}
