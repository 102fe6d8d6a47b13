package config

import (
	"dashcollab/pkg/client"
	"dashcollab/pkg/logger"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StoreBackend string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisURL         string
	RedisConnTimeout time.Duration

	Port string

	SessionTTL    time.Duration
	WidgetLockTTL time.Duration
	LockMinTTL    time.Duration
	LockMaxTTL    time.Duration
	ReaperPeriod  time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	KafkaEnabled        bool
	KafkaEventsTopic    string
	KafkaDashboardTopic string
	KafkaConsumerGroup  string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	dotenvErr := godotenv.Load()

	cfg := &Config{
		StoreBackend: getEnvStr(EnvStoreBackend, DefaultStoreBackend),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisURL:         getEnvStr(EnvRedisURL, DefaultRedisURL),
		RedisConnTimeout: getEnvDuration(EnvRedisConnTimeout, DefaultRedisConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		SessionTTL:    getEnvDuration(EnvSessionTTL, DefaultSessionTTL),
		WidgetLockTTL: getEnvDuration(EnvWidgetLockTTL, DefaultWidgetLockTTL),
		LockMinTTL:    getEnvDuration(EnvLockMinTTL, DefaultLockMinTTL),
		LockMaxTTL:    getEnvDuration(EnvLockMaxTTL, DefaultLockMaxTTL),
		ReaperPeriod:  getEnvDuration(EnvReaperPeriod, DefaultReaperPeriod),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		KafkaEnabled:        getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaEventsTopic:    getEnvStr(EnvKafkaEventsTopic, DefaultKafkaEventsTopic),
		KafkaDashboardTopic: getEnvStr(EnvKafkaDashboardTopic, DefaultKafkaDashboardTopic),
		KafkaConsumerGroup:  getEnvStr(EnvKafkaConsumerGroup, DefaultKafkaConsumerGroup),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		cfg.Log.Warn("Failed to read .env file", "error", dotenvErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisURL, cfg.RedisConnTimeout)
}

// ConnectStore opens the client the configured store backend needs.
func (cfg *Config) ConnectStore() {
	switch cfg.StoreBackend {
	case StoreMongo:
		cfg.SetMongo()
	case StoreRedis:
		cfg.SetRedis()
	}
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	case StoreRedis:
		if !regexp.MustCompile(`^rediss?://`).MatchString(cfg.RedisURL) {
			errors = append(errors, fmt.Sprintf("RedisURL must start with 'redis://' or 'rediss://', got: %s", redactURI(cfg.RedisURL)))
		}
		if cfg.RedisConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("RedisConnTimeout must be positive, got: %s", cfg.RedisConnTimeout))
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreBackend must be one of [memory, mongo, redis], got: %s", cfg.StoreBackend))
	}

	if cfg.SessionTTL <= 0 {
		errors = append(errors, fmt.Sprintf("SessionTTL must be positive, got: %s", cfg.SessionTTL))
	}
	if cfg.LockMinTTL <= 0 {
		errors = append(errors, fmt.Sprintf("LockMinTTL must be positive, got: %s", cfg.LockMinTTL))
	}
	if cfg.LockMaxTTL < cfg.LockMinTTL {
		errors = append(errors, fmt.Sprintf("LockMaxTTL (%s) must be >= LockMinTTL (%s)", cfg.LockMaxTTL, cfg.LockMinTTL))
	}
	if cfg.WidgetLockTTL < cfg.LockMinTTL || cfg.WidgetLockTTL > cfg.LockMaxTTL {
		errors = append(errors, fmt.Sprintf("WidgetLockTTL (%s) must be between LockMinTTL (%s) and LockMaxTTL (%s)", cfg.WidgetLockTTL, cfg.LockMinTTL, cfg.LockMaxTTL))
	}
	if cfg.ReaperPeriod <= 0 {
		errors = append(errors, fmt.Sprintf("ReaperPeriod must be positive, got: %s", cfg.ReaperPeriod))
	} else if cfg.ReaperPeriod >= cfg.SessionTTL || cfg.ReaperPeriod >= cfg.LockMinTTL {
		// LockMinTTL is the shortest TTL a lock can ask for.
		errors = append(errors, fmt.Sprintf("ReaperPeriod (%s) must be shorter than SessionTTL (%s) and LockMinTTL (%s)", cfg.ReaperPeriod, cfg.SessionTTL, cfg.LockMinTTL))
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.KafkaEnabled {
		if cfg.KafkaEventsTopic == "" {
			errors = append(errors, "KafkaEventsTopic cannot be empty when Kafka is enabled")
		}
		if cfg.KafkaDashboardTopic != "" && cfg.KafkaConsumerGroup == "" {
			errors = append(errors, "KafkaConsumerGroup cannot be empty when KafkaDashboardTopic is set")
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_backend", cfg.StoreBackend,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"redis_url", redactURI(cfg.RedisURL),
		"port", cfg.Port,
		"session_ttl", cfg.SessionTTL,
		"widget_lock_ttl", cfg.WidgetLockTTL,
		"lock_min_ttl", cfg.LockMinTTL,
		"lock_max_ttl", cfg.LockMaxTTL,
		"reaper_interval", cfg.ReaperPeriod,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_events_topic", cfg.KafkaEventsTopic,
		"kafka_dashboard_topic", cfg.KafkaDashboardTopic,
	)
}

func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`^([a-z+]+://)[^@/]*@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}
