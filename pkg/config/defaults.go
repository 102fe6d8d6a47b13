package config

import "time"

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
)

const (
	DefaultStoreBackend = StoreMemory

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "dashcollab"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisURL         = "redis://localhost:6379/0"
	DefaultRedisConnTimeout = 5 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultSessionTTL    = 300 * time.Second
	DefaultWidgetLockTTL = 60 * time.Second
	DefaultLockMinTTL    = 30 * time.Second
	DefaultLockMaxTTL    = 300 * time.Second
	DefaultReaperPeriod  = 15 * time.Second

	DefaultRateLimitRequests = 600
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 10 * time.Second
	DefaultIdempotencyTTL = 10 * time.Minute
	DefaultMaxRequestSize = 64 * 1024 // 64KB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultKafkaEnabled        = false
	DefaultKafkaEventsTopic    = "collaboration-events"
	DefaultKafkaDashboardTopic = "dashboard-events"
	DefaultKafkaConsumerGroup  = "collaboration-service"
)
