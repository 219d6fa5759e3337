package config

import "time"

const (
	DefaultEnvFile = ".env"

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "spacebook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultStorageBackend = BackendMongo
	DefaultHoldBackend    = BackendRedis
	DefaultNotifyBackend  = BackendKafka

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultJWTIssuer          = "spacebook"
	DefaultCORSAllowedOrigins = "*"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultOpenTime               = "08:00"
	DefaultCloseTime              = "22:00"
	DefaultTimeZone               = "UTC"
	DefaultSlotMinutes            = 30
	DefaultMinBookingDuration     = 30 * time.Minute
	DefaultMaxBookingDuration     = 3 * time.Hour
	DefaultArrivalGrace           = 15 * time.Minute
	DefaultHoldTTL                = 3 * time.Minute
	DefaultArrivalSweepInterval   = 1 * time.Minute
	DefaultCascadeRetryAttempts   = 3
	DefaultCascadeRetryBackoff    = 100 * time.Millisecond
	DefaultCascadeDenyUserPending = true
	DefaultLockTTL                = 10 * time.Second
	DefaultNotifyTimeout          = 5 * time.Second

	DefaultPaginationLimit = 100
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendKafka  = "kafka"
	BackendLog    = "log"
)
