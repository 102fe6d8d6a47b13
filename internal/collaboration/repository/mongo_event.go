package repository

import (
	"context"
	"dashcollab/pkg/config"
	"dashcollab/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	EventsCollectionName = "Collaboration_events"
)

type mongoEventRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoEventRepository(cfg *config.Config) EventRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEventRepository{
		cfg:        cfg,
		collection: db.Collection(EventsCollectionName),
	}
}

func (r *mongoEventRepository) Save(ctx context.Context, event *model.CollaborationEvent) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return transient("failed to save collaboration event", err)
	}
	return nil
}
