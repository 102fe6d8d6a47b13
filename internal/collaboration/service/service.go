package service

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/internal/collaboration/events"
	"dashcollab/internal/collaboration/validator"
	apperrors "dashcollab/pkg/errors"
	"dashcollab/pkg/logger"
	"dashcollab/pkg/model"
	"errors"
	"time"
)

// maxCASAttempts bounds read-compare-write loops on one key before the
// call gives up and reports the store as contended.
const maxCASAttempts = 8

const publishTimeout = 5 * time.Second

// Outcome is the expected result of a coordination call. Outcomes other
// than OutcomeOK are normal answers, not failures.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeConflict Outcome = "conflict"
	OutcomeNotOwner Outcome = "not_owner"
	OutcomeNotFound Outcome = "not_found"
)

type Clock func() time.Time

type Option func(*options)

type options struct {
	now       Clock
	publisher events.Publisher
}

func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:       time.Now,
		publisher: events.NewNoopPublisher(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publish runs detached from the caller's cancellation: the state change
// already happened and its event should still go out.
func (o *options) publish(ctx context.Context, log *logger.Logger, event *model.CollaborationEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := o.publisher.Publish(ctx, event); err != nil {
		log.Warn("Failed to publish collaboration event",
			"event_type", event.EventType,
			"dashboard_id", event.DashboardID,
			"widget_id", event.WidgetID,
			"user_id", event.UserID,
			"error", err,
		)
	}
}

func storeError(log *logger.Logger, operation string, err error) error {
	log.Error("Collaboration store operation failed", "operation", operation, "error", err)
	if errors.Is(err, collaborationerrors.ErrTransient) || errors.Is(err, collaborationerrors.ErrContention) {
		return apperrors.Unavailable("Collaboration store", err)
	}
	return apperrors.Internal("Failed to "+operation, err)
}

func validationError(log *logger.Logger, message string, err error) error {
	log.Warn(message, "error", err)
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return apperrors.Validation(message, map[string]any{"errors": validationErrs})
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
