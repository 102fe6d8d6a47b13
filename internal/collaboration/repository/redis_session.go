package repository

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisSessionRepository struct {
	cfg    *config.Config
	client *redis.Client
}

func NewRedisSessionRepository(cfg *config.Config) SessionRepository {
	return &redisSessionRepository{
		cfg:    cfg,
		client: cfg.Client.Redis,
	}
}

func (r *redisSessionRepository) keys(dashboardID, userID string) []string {
	return []string{
		redisSessionKey(dashboardID, userID),
		redisSessionIndexKey(dashboardID),
		redisAllSessionsKey,
	}
}

func (r *redisSessionRepository) Upsert(ctx context.Context, start model.SessionStart, now time.Time) (*model.EditingSession, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	clientInfo := ""
	if len(start.ClientInfo) > 0 {
		raw, err := json.Marshal(start.ClientInfo)
		if err != nil {
			return nil, err
		}
		clientInfo = string(raw)
	}

	reply, err := upsertSessionScript.Run(ctx, r.client, r.keys(start.DashboardID, start.UserID),
		uuid.NewString(), encodeTime(now), start.DashboardID, start.UserID,
		start.UserName, start.UserEmail, clientInfo).Slice()
	if err != nil {
		return nil, transient("failed to upsert editing session", err)
	}
	return r.decodeReply(reply)
}

func (r *redisSessionRepository) Touch(ctx context.Context, dashboardID, userID string, now time.Time) (*model.EditingSession, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	reply, err := touchSessionScript.Run(ctx, r.client, r.keys(dashboardID, userID), encodeTime(now)).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, collaborationerrors.ErrNotFound
		}
		return nil, transient("failed to touch editing session", err)
	}
	return r.decodeReply(reply)
}

func (r *redisSessionRepository) Delete(ctx context.Context, dashboardID, userID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	deleted, err := deleteScript.Run(ctx, r.client, r.keys(dashboardID, userID)).Int()
	if err != nil {
		return false, transient("failed to delete editing session", err)
	}
	return deleted > 0, nil
}

func (r *redisSessionRepository) DeleteIf(ctx context.Context, session *model.EditingSession) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := deleteIfScript.Run(ctx, r.client, r.keys(session.DashboardID, session.UserID),
		strconv.FormatInt(session.Version, 10), "session_id", session.SessionID).Int()
	if err != nil {
		return transient("failed to delete editing session", err)
	}
	switch result {
	case -1:
		return collaborationerrors.ErrNotFound
	case 0:
		return collaborationerrors.ErrStaleVersion
	}
	return nil
}

func (r *redisSessionRepository) ListByDashboard(ctx context.Context, dashboardID string) ([]*model.EditingSession, error) {
	return r.list(ctx, redisSessionIndexKey(dashboardID), func(*model.EditingSession) bool { return true })
}

func (r *redisSessionRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*model.EditingSession, error) {
	return r.list(ctx, redisAllSessionsKey, func(s *model.EditingSession) bool {
		return s.LastActivity.Before(cutoff)
	})
}

func (r *redisSessionRepository) DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	deleted, err := deleteIndexedScript.Run(ctx, r.client,
		[]string{redisSessionIndexKey(dashboardID), redisAllSessionsKey}).Int64()
	if err != nil {
		return 0, transient("failed to delete dashboard editing sessions", err)
	}
	return deleted, nil
}

func (r *redisSessionRepository) decodeReply(reply []any) (*model.EditingSession, error) {
	session, err := decodeSession(pairsToMap(reply))
	if err != nil {
		return nil, transient("failed to decode editing session", err)
	}
	return session, nil
}

func (r *redisSessionRepository) list(ctx context.Context, indexKey string, keep func(*model.EditingSession) bool) ([]*model.EditingSession, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	keys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, transient("failed to list editing session index", err)
	}
	records, err := hgetAll(ctx, r.client, keys)
	if err != nil {
		return nil, transient("failed to load editing sessions", err)
	}

	values := make([]model.EditingSession, 0, len(records))
	for _, fields := range records {
		session, err := decodeSession(fields)
		if err != nil {
			return nil, transient("failed to decode editing session", err)
		}
		if keep(session) {
			values = append(values, *session)
		}
	}
	return sortedSessions(values), nil
}
