package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"clinicflow/pkg/client"
	"clinicflow/pkg/logger"
)

type Config struct {
	StoreDriver string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	ClinicTimezone string
	Location       *time.Location

	SequenceLockTTL          time.Duration
	SequenceStrategy         string
	StoreOpTimeout           time.Duration
	AllocationMaxAttempts    int
	AllocationBackoffInitial time.Duration
	AllocationBackoffMax     time.Duration

	DefaultPriority int
	MinPriority     int
	MaxPriority     int

	HubBackend      string
	HubPingInterval time.Duration
	HubSendBuffer   int
	HubWriteTimeout time.Duration
	HubKafkaTopic   string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		StoreDriver: getEnvStr(EnvStoreDriver, DefaultStoreDriver),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresURL:      getEnvStr(EnvPostgresURL, DefaultPostgresURL),
		PostgresMaxConns: getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),
		PostgresMinConns: getEnvNum(EnvPostgresMinConns, DefaultPostgresMinConns),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		ClinicTimezone: getEnvStr(EnvClinicTimezone, DefaultClinicTimezone),

		SequenceLockTTL:          getEnvDuration(EnvSequenceLockTTL, DefaultSequenceLockTTL),
		SequenceStrategy:         getEnvStr(EnvSequenceStrategy, DefaultSequenceStrategy),
		StoreOpTimeout:           getEnvDuration(EnvStoreOpTimeout, DefaultStoreOpTimeout),
		AllocationMaxAttempts:    getEnvNum(EnvAllocationMaxAttempts, DefaultAllocationMaxAttempts),
		AllocationBackoffInitial: getEnvDuration(EnvAllocationBackoffInitial, DefaultAllocationBackoffInitial),
		AllocationBackoffMax:     getEnvDuration(EnvAllocationBackoffMax, DefaultAllocationBackoffMax),

		DefaultPriority: getEnvNum(EnvDefaultPriority, DefaultDefaultPriority),
		MinPriority:     getEnvNum(EnvMinPriority, DefaultMinPriority),
		MaxPriority:     getEnvNum(EnvMaxPriority, DefaultMaxPriority),

		HubBackend:      getEnvStr(EnvHubBackend, DefaultHubBackend),
		HubPingInterval: getEnvDuration(EnvHubPingInterval, DefaultHubPingInterval),
		HubSendBuffer:   getEnvNum(EnvHubSendBuffer, DefaultHubSendBuffer),
		HubWriteTimeout: getEnvDuration(EnvHubWriteTimeout, DefaultHubWriteTimeout),
		HubKafkaTopic:   getEnvStr(EnvHubKafkaTopic, DefaultHubKafkaTopic),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// SetStore connects the client for the configured store driver.
// The memory driver needs no connection.
func (cfg *Config) SetStore() {
	switch cfg.StoreDriver {
	case StoreMongo:
		cfg.SetMongo()
	case StorePostgres:
		cfg.SetPostgres()
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresURL, int32(cfg.PostgresMaxConns), int32(cfg.PostgresMinConns), cfg.MongoConnTimeout)
}

// ClinicLocation is the timezone the clinic's calendar day is computed in.
func (cfg *Config) ClinicLocation() *time.Location {
	if cfg.Location != nil {
		return cfg.Location
	}
	return time.UTC
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StorePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresURL) {
			errors = append(errors, fmt.Sprintf("PostgresURL must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresURL)))
		}
		if cfg.PostgresMaxConns <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
		}
		if cfg.PostgresMinConns < 0 || cfg.PostgresMinConns > cfg.PostgresMaxConns {
			errors = append(errors, fmt.Sprintf("PostgresMinConns must be between 0 and PostgresMaxConns (%d), got: %d", cfg.PostgresMaxConns, cfg.PostgresMinConns))
		}
	case StoreMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [mongo, postgres, memory], got: %s", cfg.StoreDriver))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
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
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if loc, err := time.LoadLocation(cfg.ClinicTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("ClinicTimezone must be a valid IANA timezone, got: %s", cfg.ClinicTimezone))
	} else {
		cfg.Location = loc
	}

	if cfg.SequenceLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("SequenceLockTTL must be positive, got: %s", cfg.SequenceLockTTL))
	}
	if cfg.StoreOpTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("StoreOpTimeout must be positive, got: %s", cfg.StoreOpTimeout))
	} else if cfg.StoreOpTimeout >= cfg.SequenceLockTTL {
		errors = append(errors, fmt.Sprintf("StoreOpTimeout (%s) must be shorter than SequenceLockTTL (%s)", cfg.StoreOpTimeout, cfg.SequenceLockTTL))
	}
	if cfg.SequenceStrategy != SequenceStrategyLock && cfg.SequenceStrategy != SequenceStrategyNative {
		errors = append(errors, fmt.Sprintf("SequenceStrategy must be one of [lock, native], got: %s", cfg.SequenceStrategy))
	}
	if cfg.SequenceStrategy == SequenceStrategyNative && cfg.StoreDriver == StoreMongo {
		errors = append(errors, "SequenceStrategy 'native' requires the postgres or memory store driver")
	}
	if cfg.AllocationMaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("AllocationMaxAttempts must be positive, got: %d", cfg.AllocationMaxAttempts))
	}
	if cfg.AllocationBackoffInitial <= 0 {
		errors = append(errors, fmt.Sprintf("AllocationBackoffInitial must be positive, got: %s", cfg.AllocationBackoffInitial))
	}
	if cfg.AllocationBackoffMax < cfg.AllocationBackoffInitial {
		errors = append(errors, fmt.Sprintf("AllocationBackoffMax (%s) must be >= AllocationBackoffInitial (%s)", cfg.AllocationBackoffMax, cfg.AllocationBackoffInitial))
	}

	if cfg.MinPriority < 0 {
		errors = append(errors, fmt.Sprintf("MinPriority cannot be negative, got: %d", cfg.MinPriority))
	}
	if cfg.MaxPriority < cfg.MinPriority {
		errors = append(errors, fmt.Sprintf("MaxPriority (%d) must be >= MinPriority (%d)", cfg.MaxPriority, cfg.MinPriority))
	}
	if cfg.DefaultPriority < cfg.MinPriority || cfg.DefaultPriority > cfg.MaxPriority {
		errors = append(errors, fmt.Sprintf("DefaultPriority (%d) must be between MinPriority (%d) and MaxPriority (%d)", cfg.DefaultPriority, cfg.MinPriority, cfg.MaxPriority))
	}

	if cfg.HubBackend != HubBackendMemory && cfg.HubBackend != HubBackendKafka {
		errors = append(errors, fmt.Sprintf("HubBackend must be one of [memory, kafka], got: %s", cfg.HubBackend))
	}
	if cfg.HubPingInterval <= 0 {
		errors = append(errors, fmt.Sprintf("HubPingInterval must be positive, got: %s", cfg.HubPingInterval))
	}
	if cfg.HubSendBuffer <= 0 {
		errors = append(errors, fmt.Sprintf("HubSendBuffer must be positive, got: %d", cfg.HubSendBuffer))
	}
	if cfg.HubWriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("HubWriteTimeout must be positive, got: %s", cfg.HubWriteTimeout))
	}
	if cfg.HubBackend == HubBackendKafka && cfg.HubKafkaTopic == "" {
		errors = append(errors, "HubKafkaTopic cannot be empty when HubBackend is kafka")
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
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_url", redactURI(cfg.PostgresURL),
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"clinic_timezone", cfg.ClinicTimezone,
		"sequence_lock_ttl", cfg.SequenceLockTTL,
		"sequence_strategy", cfg.SequenceStrategy,
		"store_op_timeout", cfg.StoreOpTimeout,
		"allocation_max_attempts", cfg.AllocationMaxAttempts,
		"allocation_backoff_initial", cfg.AllocationBackoffInitial,
		"allocation_backoff_max", cfg.AllocationBackoffMax,
		"default_priority", cfg.DefaultPriority,
		"min_priority", cfg.MinPriority,
		"max_priority", cfg.MaxPriority,
		"hub_backend", cfg.HubBackend,
		"hub_ping_interval", cfg.HubPingInterval,
		"hub_send_buffer", cfg.HubSendBuffer,
		"hub_kafka_topic", cfg.HubKafkaTopic,
	)
}

func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`^([a-z+]+://)[^:@/]+:[^@]+@`)
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}
