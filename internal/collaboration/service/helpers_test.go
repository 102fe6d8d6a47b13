package service

import (
	"context"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/internal/collaboration/validator"
	"dashcollab/pkg/config"
	"dashcollab/pkg/logger"
	"dashcollab/pkg/model"
	"sync"
	"time"
)

var testEpoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.CollaborationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *model.CollaborationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType
	}
	return types
}

func testConfig() *config.Config {
	return &config.Config{
		SessionTTL:    300 * time.Second,
		WidgetLockTTL: 60 * time.Second,
		LockMinTTL:    30 * time.Second,
		LockMaxTTL:    300 * time.Second,
		Log:           logger.Discard(),
	}
}

type fixture struct {
	clock     *fakeClock
	publisher *recordingPublisher
	cfg       *config.Config
	lockRepo  repository.LockRepository
	sessRepo  repository.SessionRepository
	locks     LockManager
	sessions  SessionRegistry
	presence  PresenceService
}

func newFixture() *fixture {
	f := &fixture{
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
		cfg:       testConfig(),
		lockRepo:  repository.NewMemoryLockRepository(),
		sessRepo:  repository.NewMemorySessionRepository(),
	}
	v := validator.NewCollaborationValidator()
	opts := []Option{WithClock(f.clock.Now), WithPublisher(f.publisher)}
	f.locks = NewLockManager(f.lockRepo, v, f.cfg, opts...)
	f.sessions = NewSessionRegistry(f.sessRepo, v, f.cfg, opts...)
	f.presence = NewPresenceService(f.sessions, f.locks, opts...)
	return f
}

func acquire(dashboardID, widgetID, userID string) AcquireRequest {
	return AcquireRequest{DashboardID: dashboardID, WidgetID: widgetID, UserID: userID, UserName: userID}
}

// mockLockRepository lets a test script store behaviour per call.
type mockLockRepository struct {
	getFunc               func(ctx context.Context, dashboardID, widgetID string) (*model.WidgetLock, error)
	insertFunc            func(ctx context.Context, lock *model.WidgetLock) error
	replaceFunc           func(ctx context.Context, lock *model.WidgetLock) error
	deleteIfFunc          func(ctx context.Context, lock *model.WidgetLock) error
	listByDashboardFunc   func(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error)
	listExpiredFunc       func(ctx context.Context, now time.Time) ([]*model.WidgetLock, error)
	deleteByDashboardFunc func(ctx context.Context, dashboardID string) (int64, error)
}

func (m *mockLockRepository) Get(ctx context.Context, dashboardID, widgetID string) (*model.WidgetLock, error) {
	return m.getFunc(ctx, dashboardID, widgetID)
}

func (m *mockLockRepository) Insert(ctx context.Context, lock *model.WidgetLock) error {
	return m.insertFunc(ctx, lock)
}

func (m *mockLockRepository) Replace(ctx context.Context, lock *model.WidgetLock) error {
	return m.replaceFunc(ctx, lock)
}

func (m *mockLockRepository) DeleteIf(ctx context.Context, lock *model.WidgetLock) error {
	return m.deleteIfFunc(ctx, lock)
}

func (m *mockLockRepository) ListByDashboard(ctx context.Context, dashboardID string) ([]*model.WidgetLock, error) {
	return m.listByDashboardFunc(ctx, dashboardID)
}

func (m *mockLockRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.WidgetLock, error) {
	return m.listExpiredFunc(ctx, now)
}

func (m *mockLockRepository) DeleteByDashboard(ctx context.Context, dashboardID string) (int64, error) {
	return m.deleteByDashboardFunc(ctx, dashboardID)
}
