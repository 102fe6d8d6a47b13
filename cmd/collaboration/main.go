package main

import (
	"context"
	"dashcollab/internal/collaboration/events"
	"dashcollab/internal/collaboration/handler"
	"dashcollab/internal/collaboration/reaper"
	"dashcollab/internal/collaboration/repository"
	"dashcollab/internal/collaboration/service"
	"dashcollab/internal/collaboration/validator"
	"dashcollab/pkg/app"
	"dashcollab/pkg/config"
	"dashcollab/pkg/kafka"
	"dashcollab/pkg/kafka/middleware"

	kafka_config "dashcollab/pkg/kafka/config"
)

const ServiceName = "collaboration"

type services struct {
	sessions service.SessionRegistry
	locks    service.LockManager
	presence service.PresenceService
	purger   service.DashboardPurger
	reaper   *reaper.Reaper
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.ConnectStore()

	cfg.Log.Info("Starting Collaboration service", "store_backend", cfg.StoreBackend)
	serverApp := app.NewApplication(cfg)

	sessionRepo, lockRepo := initRepositories(cfg)
	publisher := initPublisher(cfg, serverApp)
	svc := initServices(cfg, sessionRepo, lockRepo, publisher)
	initDashboardConsumer(cfg, serverApp, svc.purger)

	serverApp.AddWorker("reaper", svc.reaper)
	serverApp.SetApp(
		handler.NewCollaborationHandler(svc.sessions, svc.locks, svc.presence, svc.reaper, cfg.Log),
		handler.NewHealthHandler(cfg.Client, cfg.StoreBackend, cfg.Log),
	)
	serverApp.Run()
}

func initRepositories(cfg *config.Config) (repository.SessionRepository, repository.LockRepository) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		return repository.NewMongoSessionRepository(cfg), repository.NewMongoLockRepository(cfg)
	case config.StoreRedis:
		return repository.NewRedisSessionRepository(cfg), repository.NewRedisLockRepository(cfg)
	default:
		cfg.Log.Warn("Using in-memory store, state is lost on restart and not shared between instances")
		return repository.NewMemorySessionRepository(), repository.NewMemoryLockRepository()
	}
}

func initPublisher(cfg *config.Config, serverApp *app.Application) events.Publisher {
	var publishers []events.Publisher

	if cfg.StoreBackend == config.StoreMongo {
		publishers = append(publishers, events.NewStorePublisher(repository.NewMongoEventRepository(cfg)))
	}

	if cfg.KafkaEnabled {
		kcfg := loadKafkaConfig(cfg)
		producer, err := kafka.NewProducer(kcfg, cfg.Log, cfg.KafkaEventsTopic)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
		}
		producer.Use(middleware.LoggingProducerMiddleware(cfg.Log))
		serverApp.AddCloser("kafka producer", producer)
		publishers = append(publishers, events.NewKafkaPublisher(producer, ServiceName))
	}

	if len(publishers) == 0 {
		return events.NewNoopPublisher()
	}
	return events.NewFanOutPublisher(publishers...)
}

func initServices(
	cfg *config.Config,
	sessionRepo repository.SessionRepository,
	lockRepo repository.LockRepository,
	publisher events.Publisher,
) *services {
	collaborationValidator := validator.NewCollaborationValidator()

	sessions := service.NewSessionRegistry(sessionRepo, collaborationValidator, cfg, service.WithPublisher(publisher))
	locks := service.NewLockManager(lockRepo, collaborationValidator, cfg, service.WithPublisher(publisher))

	svc := &services{
		sessions: sessions,
		locks:    locks,
		presence: service.NewPresenceService(sessions, locks),
		purger:   service.NewDashboardPurger(sessionRepo, lockRepo, collaborationValidator, cfg),
		reaper:   reaper.NewReaper(sessionRepo, lockRepo, cfg, reaper.WithPublisher(publisher)),
	}

	cfg.Log.Info("Collaboration services initialized",
		"session_ttl", cfg.SessionTTL,
		"widget_lock_ttl", cfg.WidgetLockTTL,
	)
	return svc
}

func initDashboardConsumer(cfg *config.Config, serverApp *app.Application, purger service.DashboardPurger) {
	if !cfg.KafkaEnabled || cfg.KafkaDashboardTopic == "" {
		return
	}

	kcfg := loadKafkaConfig(cfg)
	purge := func(ctx context.Context, dashboardID string) error {
		result, err := purger.Purge(ctx, dashboardID)
		if err != nil {
			return err
		}
		cfg.Log.Info("Dashboard coordination state purged",
			"dashboard_id", dashboardID,
			"sessions", result.DeletedSessions,
			"locks", result.DeletedLocks,
		)
		return nil
	}

	consumer, err := kafka.NewConsumer(
		kcfg,
		cfg.Log,
		cfg.KafkaDashboardTopic,
		cfg.KafkaConsumerGroup,
		kcfg.ConsumerDLQTopic,
		events.NewDashboardEventHandler(purge, cfg.Log),
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(middleware.LoggingConsumerMiddleware(cfg.Log))
	serverApp.AddWorker("dashboard consumer", app.NewConsumerWorker(consumer, cfg.Log))
}

func loadKafkaConfig(cfg *config.Config) *kafka_config.Config {
	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	return kcfg
}
