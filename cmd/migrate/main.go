package main

import (
	"context"
	mongoMigration "dashcollab/internal/migrations/mongo"
	"dashcollab/pkg/config"
	"os"
	"time"
)

const JobName = "mongo-migration"

func main() {
	cfg := config.Load(JobName)
	if cfg.StoreBackend != config.StoreMongo {
		cfg.Log.Warn("Store backend is not mongo, running migration anyway", "store_backend", cfg.StoreBackend)
	}
	cfg.SetMongo()

	cfg.Log.Info("Starting Mongo migration job", "database", cfg.MongoDatabaseName)
	err := migrateMongo(cfg)
	cfg.GracefulShutdown()
	if err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	cfg.Log.Info("Migration completed successfully")
}

func migrateMongo(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	return mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName)
}
