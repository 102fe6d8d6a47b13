package events

import (
	"context"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/pkg/model"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Publisher delivers collaboration events after the state change they
// describe has been committed. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event *model.CollaborationEvent) error
}

func NewEvent(eventType model.EventType, dashboardID, widgetID, userID, userName string, at time.Time) *model.CollaborationEvent {
	return &model.CollaborationEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		DashboardID: dashboardID,
		WidgetID:    widgetID,
		UserID:      userID,
		UserName:    userName,
		CreatedAt:   at,
	}
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, *model.CollaborationEvent) error {
	return nil
}

type fanOutPublisher struct {
	publishers []Publisher
}

// NewFanOutPublisher delivers to every publisher and joins their errors.
// With no publishers it behaves like the no-op publisher.
func NewFanOutPublisher(publishers ...Publisher) Publisher {
	switch len(publishers) {
	case 0:
		return NewNoopPublisher()
	case 1:
		return publishers[0]
	}
	return &fanOutPublisher{publishers: publishers}
}

func (p *fanOutPublisher) Publish(ctx context.Context, event *model.CollaborationEvent) error {
	var errs []error
	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type storePublisher struct {
	repo repository.EventRepository
}

// NewStorePublisher writes events to the audit collection.
func NewStorePublisher(repo repository.EventRepository) Publisher {
	return &storePublisher{repo: repo}
}

func (p *storePublisher) Publish(ctx context.Context, event *model.CollaborationEvent) error {
	if err := p.repo.Save(ctx, event); err != nil {
		return fmt.Errorf("failed to store %s event: %w", event.EventType, err)
	}
	return nil
}
