package config

const (
	EnvStoreDriver = "STORE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresURL      = "POSTGRES_URL"
	EnvPostgresMaxConns = "POSTGRES_MAX_CONNS"
	EnvPostgresMinConns = "POSTGRES_MIN_CONNS"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvClinicTimezone = "CLINIC_TIMEZONE"

	EnvSequenceLockTTL          = "SEQUENCE_LOCK_TTL"
	EnvSequenceStrategy         = "SEQUENCE_STRATEGY"
	EnvStoreOpTimeout           = "STORE_OP_TIMEOUT"
	EnvAllocationMaxAttempts    = "ALLOCATION_MAX_ATTEMPTS"
	EnvAllocationBackoffInitial = "ALLOCATION_BACKOFF_INITIAL"
	EnvAllocationBackoffMax     = "ALLOCATION_BACKOFF_MAX"

	EnvDefaultPriority = "DEFAULT_PRIORITY"
	EnvMinPriority     = "MIN_PRIORITY"
	EnvMaxPriority     = "MAX_PRIORITY"

	EnvHubBackend      = "HUB_BACKEND"
	EnvHubPingInterval = "HUB_PING_INTERVAL"
	EnvHubSendBuffer   = "HUB_SEND_BUFFER"
	EnvHubWriteTimeout = "HUB_WRITE_TIMEOUT"
	EnvHubKafkaTopic   = "HUB_KAFKA_TOPIC"
)
