package service

import (
	"context"
	"dashcollab/pkg/model"
	"time"

	"golang.org/x/sync/errgroup"
)

// Presence is who is on a dashboard and which widgets they hold. The two
// lists are read independently and may disagree by a heartbeat or two.
type Presence struct {
	DashboardID string
	Sessions    []*model.EditingSession
	Locks       []*model.WidgetLock
	GeneratedAt time.Time
}

type PresenceService interface {
	Snapshot(ctx context.Context, dashboardID string) (*Presence, error)
}

type presenceService struct {
	sessions SessionRegistry
	locks    LockManager
	now      Clock
}

func NewPresenceService(sessions SessionRegistry, locks LockManager, opts ...Option) PresenceService {
	o := newOptions(opts)
	return &presenceService{
		sessions: sessions,
		locks:    locks,
		now:      o.now,
	}
}

func (p *presenceService) Snapshot(ctx context.Context, dashboardID string) (*Presence, error) {
	presence := &Presence{DashboardID: dashboardID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions, err := p.sessions.ListActive(gctx, dashboardID)
		presence.Sessions = sessions
		return err
	})
	g.Go(func() error {
		locks, err := p.locks.ListActive(gctx, dashboardID)
		presence.Locks = locks
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	presence.GeneratedAt = p.now()
	return presence, nil
}
