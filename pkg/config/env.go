package config

const (
	EnvFile = "ENV_FILE"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvStorageBackend = "STORAGE_BACKEND"
	EnvHoldBackend    = "HOLD_BACKEND"
	EnvNotifyBackend  = "NOTIFY_BACKEND"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret          = "JWT_SECRET"
	EnvJWTIssuer          = "JWT_ISSUER"
	EnvCORSAllowedOrigins = "CORS_ALLOWED_ORIGINS"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvOpenTime               = "OPEN_TIME"
	EnvCloseTime              = "CLOSE_TIME"
	EnvTimeZone               = "TIME_ZONE"
	EnvSlotMinutes            = "SLOT_MINUTES"
	EnvMinBookingDuration     = "MIN_BOOKING_DURATION"
	EnvMaxBookingDuration     = "MAX_BOOKING_DURATION"
	EnvArrivalGrace           = "ARRIVAL_GRACE"
	EnvHoldTTL                = "HOLD_TTL"
	EnvArrivalSweepInterval   = "ARRIVAL_SWEEP_INTERVAL"
	EnvCascadeRetryAttempts   = "CASCADE_RETRY_ATTEMPTS"
	EnvCascadeRetryBackoff    = "CASCADE_RETRY_BACKOFF"
	EnvCascadeDenyUserPending = "CASCADE_DENY_USER_PENDING"
	EnvLockTTL                = "LOCK_TTL"
	EnvNotifyTimeout          = "NOTIFY_TIMEOUT"
	EnvPolicyFile             = "POLICY_FILE"
)
