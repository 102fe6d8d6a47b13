package config

const (
	EnvStoreBackend = "STORE_BACKEND"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisURL         = "REDIS_URL"
	EnvRedisConnTimeout = "REDIS_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvSessionTTL    = "SESSION_TTL"
	EnvWidgetLockTTL = "WIDGET_LOCK_TTL"
	EnvLockMinTTL    = "LOCK_MIN_TTL"
	EnvLockMaxTTL    = "LOCK_MAX_TTL"
	EnvReaperPeriod  = "REAPER_INTERVAL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvKafkaEnabled        = "KAFKA_ENABLED"
	EnvKafkaEventsTopic    = "KAFKA_EVENTS_TOPIC"
	EnvKafkaDashboardTopic = "KAFKA_DASHBOARD_TOPIC"
	EnvKafkaConsumerGroup  = "KAFKA_CONSUMER_GROUP"
)
