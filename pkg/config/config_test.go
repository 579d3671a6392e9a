package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		StoreDriver:              StoreMongo,
		MongoURI:                 DefaultMongoURI,
		MongoDatabaseName:        DefaultMongoDatabaseName,
		MongoConnTimeout:         DefaultMongoConnTimeout,
		PostgresURL:              DefaultPostgresURL,
		PostgresMaxConns:         DefaultPostgresMaxConns,
		PostgresMinConns:         DefaultPostgresMinConns,
		Port:                     DefaultPort,
		RateLimitRequests:        DefaultRateLimitRequests,
		RateLimitWindow:          DefaultRateLimitWindow,
		RequestTimeout:           DefaultRequestTimeout,
		IdempotencyTTL:           DefaultIdempotencyTTL,
		MaxRequestSize:           DefaultMaxRequestSize,
		ReadTimeout:              DefaultReadTimeout,
		WriteTimeout:             DefaultWriteTimeout,
		IdleTimeout:              DefaultIdleTimeout,
		ShutdownTimeout:          DefaultShutdownTimeout,
		ClinicTimezone:           DefaultClinicTimezone,
		SequenceLockTTL:          DefaultSequenceLockTTL,
		SequenceStrategy:         DefaultSequenceStrategy,
		StoreOpTimeout:           DefaultStoreOpTimeout,
		AllocationMaxAttempts:    DefaultAllocationMaxAttempts,
		AllocationBackoffInitial: DefaultAllocationBackoffInitial,
		AllocationBackoffMax:     DefaultAllocationBackoffMax,
		DefaultPriority:          DefaultDefaultPriority,
		MinPriority:              DefaultMinPriority,
		MaxPriority:              DefaultMaxPriority,
		HubBackend:               DefaultHubBackend,
		HubPingInterval:          DefaultHubPingInterval,
		HubSendBuffer:            DefaultHubSendBuffer,
		HubWriteTimeout:          DefaultHubWriteTimeout,
		HubKafkaTopic:            DefaultHubKafkaTopic,
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Location)
	assert.Equal(t, DefaultClinicTimezone, cfg.ClinicLocation().String())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Port = "70000" }, want: "Port"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "redis" }, want: "StoreDriver"},
		{name: "bad mongo uri", mutate: func(c *Config) { c.MongoURI = "http://localhost" }, want: "MongoURI"},
		{name: "bad postgres url", mutate: func(c *Config) {
			c.StoreDriver = StorePostgres
			c.PostgresURL = "mysql://x"
		}, want: "PostgresURL"},
		{name: "bad timezone", mutate: func(c *Config) { c.ClinicTimezone = "Mars/Olympus" }, want: "ClinicTimezone"},
		{name: "op timeout not below lock ttl", mutate: func(c *Config) { c.StoreOpTimeout = c.SequenceLockTTL }, want: "StoreOpTimeout"},
		{name: "native on mongo", mutate: func(c *Config) { c.SequenceStrategy = SequenceStrategyNative }, want: "native"},
		{name: "unknown strategy", mutate: func(c *Config) { c.SequenceStrategy = "random" }, want: "SequenceStrategy"},
		{name: "backoff max below initial", mutate: func(c *Config) { c.AllocationBackoffMax = time.Millisecond }, want: "AllocationBackoffMax"},
		{name: "default priority out of range", mutate: func(c *Config) { c.DefaultPriority = 11 }, want: "DefaultPriority"},
		{name: "unknown hub", mutate: func(c *Config) { c.HubBackend = "redis" }, want: "HubBackend"},
		{name: "kafka hub without topic", mutate: func(c *Config) {
			c.HubBackend = HubBackendKafka
			c.HubKafkaTopic = ""
		}, want: "HubKafkaTopic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MemoryStoreSkipsConnectionChecks(t *testing.T) {
	cfg := validConfig()
	cfg.StoreDriver = StoreMemory
	cfg.MongoURI = ""
	cfg.SequenceStrategy = SequenceStrategyNative
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "0"
	cfg.HubSendBuffer = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "\n  "))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CLINICFLOW_TEST_NUM", "42")
	t.Setenv("CLINICFLOW_TEST_BAD_NUM", "forty-two")
	t.Setenv("CLINICFLOW_TEST_DUR", "250ms")

	assert.Equal(t, 42, getEnvNum("CLINICFLOW_TEST_NUM", 1))
	assert.Equal(t, 1, getEnvNum("CLINICFLOW_TEST_BAD_NUM", 1))
	assert.Equal(t, 250*time.Millisecond, getEnvDuration("CLINICFLOW_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("CLINICFLOW_TEST_MISSING", time.Second))
	assert.Equal(t, "fallback", getEnvStr("CLINICFLOW_TEST_MISSING", "fallback"))
}

func TestRedactURI(t *testing.T) {
	assert.Equal(t, "postgres://***:***@db:5432/clinic", redactURI("postgres://admin:s3cret@db:5432/clinic"))
	assert.Equal(t, "mongodb://localhost:27017", redactURI("mongodb://localhost:27017"))
}

func TestClinicLocation_DefaultsToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, (&Config{}).ClinicLocation())
}
