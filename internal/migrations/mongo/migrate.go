package mongo

import (
	"context"
	"dashcollab/internal/migrations/mongo/validators"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	EditingSessionsCollection     = "Editing_sessions"
	WidgetLocksCollection         = "Widget_locks"
	CollaborationEventsCollection = "Collaboration_events"
)

var (
	EditingSessionsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "dashboard_id", Value: 1}, {Key: "connected_at", Value: 1}}},
		{Keys: bson.D{{Key: "last_activity", Value: 1}}},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	WidgetLocksIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "dashboard_id", Value: 1}, {Key: "widget_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "owner_user_id", Value: 1}}},
	}

	CollaborationEventsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "dashboard_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

type collectionDef struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func collections() []collectionDef {
	return []collectionDef{
		{
			Name:      EditingSessionsCollection,
			Indexes:   EditingSessionsIndexes,
			Validator: validators.EditingSessionValidator,
		},
		{
			Name:      WidgetLocksCollection,
			Indexes:   WidgetLocksIndexes,
			Validator: validators.WidgetLockValidator,
		},
		{
			Name:      CollaborationEventsCollection,
			Indexes:   CollaborationEventsIndexes,
			Validator: validators.CollaborationEventValidator,
		},
	}
}

// RunMigration creates the collaboration collections with their validators and
// indexes. Running it again updates validators and leaves existing indexes alone.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	fmt.Printf("🚀 Running collaboration Mongo migrations on database: %s\n", dbName)

	for _, def := range collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	fmt.Println("✅ All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("🆕 Creating collection: %s\n", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	fmt.Printf("ℹ️ Collection %s already exists, updating validator\n", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		fmt.Printf("⚠️ Warning: failed updating validator for %s: %v\n", name, err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	fmt.Printf("📚 Ensured indexes for %s\n", name)
	return nil
}
