package events

import (
	"context"
	"dashcollab/pkg/kafka"
	"dashcollab/pkg/model"
)

const SchemaVersion = "1"

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaPublisher struct {
	producer messagePublisher
	source   string
}

// NewKafkaPublisher keys messages by dashboard id so one dashboard's events stay ordered.
func NewKafkaPublisher(producer messagePublisher, source string) Publisher {
	return &kafkaPublisher{producer: producer, source: source}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event *model.CollaborationEvent) error {
	msg, err := kafka.NewMessage().
		WithKey(event.DashboardID).
		WithValue(event).
		WithEventID(event.EventID).
		WithEventType(string(event.EventType)).
		WithSource(p.source).
		WithHeader(kafka.HeaderSchemaVersion, SchemaVersion).
		WithTimestamp(event.CreatedAt).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}
