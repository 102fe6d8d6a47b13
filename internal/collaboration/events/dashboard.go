package events

import (
	"context"
	collaborationerrors "dashcollab/internal/collaboration/errors"
	"dashcollab/pkg/kafka"
	"dashcollab/pkg/logger"
	"errors"
)

const DashboardDeleted = "dashboard.deleted"

// DashboardEvent is the subset of the dashboard service's lifecycle events we care about.
type DashboardEvent struct {
	EventType   string `json:"event_type"`
	DashboardID string `json:"dashboard_id"`
}

type PurgeFunc func(ctx context.Context, dashboardID string) error

// NewDashboardEventHandler purges coordination state of deleted dashboards.
// Other event types are acknowledged and ignored.
func NewDashboardEventHandler(purge PurgeFunc, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event DashboardEvent
		if err := msg.DecodeValue(&event); err != nil {
			return kafka.NewPermanentError("failed to decode dashboard event", err)
		}
		if event.EventType == "" {
			event.EventType = msg.GetEventType()
		}
		if event.DashboardID == "" {
			event.DashboardID = msg.Key
		}

		if event.EventType != DashboardDeleted {
			log.Debug("Ignoring dashboard event", "event_type", event.EventType, "dashboard_id", event.DashboardID)
			return nil
		}
		if event.DashboardID == "" {
			return kafka.NewPermanentError("dashboard event without dashboard_id", nil)
		}

		if err := purge(ctx, event.DashboardID); err != nil {
			if errors.Is(err, collaborationerrors.ErrTransient) {
				return kafka.NewTransientError("failed to purge dashboard", err)
			}
			return kafka.NewPermanentError("failed to purge dashboard", err)
		}
		return nil
	}
}
