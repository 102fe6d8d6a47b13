package handler

import (
	"context"
	"dashcollab/internal/collaboration/reaper"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/internal/collaboration/service"
	"dashcollab/internal/collaboration/validator"
	"dashcollab/pkg/config"
	"dashcollab/pkg/logger"
	"dashcollab/pkg/middleware"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	clock   *testClock
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	cfg := &config.Config{
		SessionTTL:    300 * time.Second,
		WidgetLockTTL: 60 * time.Second,
		LockMinTTL:    30 * time.Second,
		LockMaxTTL:    300 * time.Second,
		ReaperPeriod:  15 * time.Second,
		Log:           logger.Discard(),
	}

	sessRepo := repository.NewMemorySessionRepository()
	lockRepo := repository.NewMemoryLockRepository()
	v := validator.NewCollaborationValidator()
	sessions := service.NewSessionRegistry(sessRepo, v, cfg, service.WithClock(clock.Now))
	locks := service.NewLockManager(lockRepo, v, cfg, service.WithClock(clock.Now))
	presence := service.NewPresenceService(sessions, locks, service.WithClock(clock.Now))
	sweeper := reaper.NewReaper(sessRepo, lockRepo, cfg, reaper.WithClock(clock.Now))

	router := httprouter.New()
	NewCollaborationHandler(sessions, locks, presence, sweeper, cfg.Log).RegisterRoutes(router)

	return &testServer{
		clock:   clock,
		handler: middleware.RequireIdentity(cfg.Log)(router),
	}
}

func (s *testServer) do(t *testing.T, method, path, user, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, BasePath+path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
		req.Header.Set(middleware.UserNameHeader, strings.ToUpper(user[:1])+user[1:])
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func TestCollaborationHandler_MissingIdentity(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestCollaborationHandler_LockLifecycle(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", `{"lock_duration":60}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	lock := data(t, body)
	assert.Equal(t, "alice", lock["owner_user_id"])
	assert.Equal(t, "Alice", lock["owner_user_name"])
	assert.Equal(t, float64(60), lock["time_remaining"])

	s.clock.Advance(20 * time.Second)
	w, body = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "bob", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "alice", details["locked_by_user_id"])
	assert.Equal(t, float64(40), details["time_remaining"])

	w, body = s.do(t, http.MethodGet, "/dashboards/d1/widgets/w1/status", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := data(t, body)
	assert.Equal(t, true, status["is_locked"])
	assert.Equal(t, "alice", status["locked_by_user_id"])
	assert.Equal(t, false, status["can_acquire"])

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/heartbeat", "bob", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/dashboards/d1/widgets/w1/lock", "bob", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/heartbeat", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(60), data(t, body)["time_remaining"])

	w, _ = s.do(t, http.MethodDelete, "/dashboards/d1/widgets/w1/lock", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodGet, "/dashboards/d1/widgets/w1/status", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	status = data(t, body)
	assert.Equal(t, false, status["is_locked"])
	assert.Equal(t, true, status["can_acquire"])
	assert.NotContains(t, status, "time_remaining")

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/heartbeat", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "bob", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCollaborationHandler_LockAnswersAreNotReplayed(t *testing.T) {
	s := newTestServer(t)
	store := middleware.NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()
	handler := middleware.Idempotency(store, "")(s.handler)

	acquire := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, BasePath+"/dashboards/d1/widgets/w1/lock", nil)
		req.Header.Set(middleware.UserIDHeader, user)
		req.Header.Set(middleware.IdempotencyKeyHeader, "acquire-1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := acquire("alice")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "no-store", first.Header().Get("Cache-Control"))

	w, _ := s.do(t, http.MethodDelete, "/dashboards/d1/widgets/w1/lock", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)

	retried := acquire("alice")
	assert.Equal(t, http.StatusConflict, retried.Code)
	assert.Empty(t, retried.Header().Get("Idempotent-Replayed"))

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/heartbeat", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCollaborationHandler_AcquireRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", `{"lock_duration":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	// 2^55+60 seconds would wrap to exactly 60s if multiplied unchecked.
	w, body = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", `{"lock_duration":36028797018964028}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", `{"lock_duration":-60}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", `{"lock_duration":"long"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestCollaborationHandler_SessionsAndPresence(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/dashboards/d1/edit/start", "alice", `{"user_email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := data(t, body)
	assert.NotEmpty(t, session["session_id"])
	assert.Equal(t, "alice@example.com", session["user_email"])

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/edit/start", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodGet, "/dashboards/d1/active-sessions", "carol", "")
	require.Equal(t, http.StatusOK, w.Code)
	presence := data(t, body)
	assert.Equal(t, float64(2), presence["total_sessions"])
	sessions := presence["active_sessions"].([]any)
	require.Len(t, sessions, 2)
	assert.Equal(t, []any{"w1"}, sessions[0].(map[string]any)["locked_widgets"])
	assert.Len(t, presence["widget_locks"].([]any), 1)

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/edit/heartbeat", "carol", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/edit/stop", "bob", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/edit/stop", "bob", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/edit/heartbeat", "bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCollaborationHandler_Cleanup(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/dashboards/d1/edit/start", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/dashboards/d1/widgets/w1/lock", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	s.clock.Advance(301 * time.Second)
	w, body := s.do(t, http.MethodPost, "/cleanup/stale-sessions", "admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	result := data(t, body)
	assert.Equal(t, float64(1), result["cleaned_sessions"])
	assert.Equal(t, float64(1), result["cleaned_locks"])
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	router := httprouter.New()
	NewHealthHandler(stubPinger{}, "memory", logger.Discard()).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	router = httprouter.New()
	NewHealthHandler(stubPinger{err: errors.New("down")}, "redis", logger.Discard()).RegisterRoutes(router)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
