package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"spacebook/pkg/client"
	"spacebook/pkg/logger"
	"spacebook/pkg/timewindow"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StorageBackend string
	HoldBackend    string
	NotifyBackend  string

	Port string

	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	OpenTime               string
	CloseTime              string
	TimeZone               string
	SlotDuration           time.Duration
	MinBookingDuration     time.Duration
	MaxBookingDuration     time.Duration
	ArrivalGrace           time.Duration
	HoldTTL                time.Duration
	ArrivalSweepInterval   time.Duration
	CascadeRetryAttempts   int
	CascadeRetryBackoff    time.Duration
	CascadeDenyUserPending bool
	LockTTL                time.Duration
	NotifyTimeout          time.Duration
	PolicyFile             string

	// Resolved from the raw values above by Resolve.
	Hours    timewindow.Hours
	Location *time.Location
	Policy   *Policy

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	envFile := getEnvStr(EnvFile, DefaultEnvFile)
	envErr := godotenv.Load(envFile)

	cfg := FromEnv(serviceName)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		cfg.Log.Warn("Failed to load env file", "file", envFile, "error", envErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	if err := cfg.Resolve(); err != nil {
		cfg.Log.Fatal("Failed to resolve configuration", "error", err)
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv reads every setting from the environment, falling back to the
// compiled-in defaults. The result is neither validated nor resolved.
func FromEnv(serviceName string) *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		StorageBackend: getEnvStr(EnvStorageBackend, DefaultStorageBackend),
		HoldBackend:    getEnvStr(EnvHoldBackend, DefaultHoldBackend),
		NotifyBackend:  getEnvStr(EnvNotifyBackend, DefaultNotifyBackend),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret:          getEnvStr(EnvJWTSecret, ""),
		JWTIssuer:          getEnvStr(EnvJWTIssuer, DefaultJWTIssuer),
		CORSAllowedOrigins: splitList(getEnvStr(EnvCORSAllowedOrigins, DefaultCORSAllowedOrigins)),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		OpenTime:               getEnvStr(EnvOpenTime, DefaultOpenTime),
		CloseTime:              getEnvStr(EnvCloseTime, DefaultCloseTime),
		TimeZone:               getEnvStr(EnvTimeZone, DefaultTimeZone),
		SlotDuration:           time.Duration(getEnvNum(EnvSlotMinutes, DefaultSlotMinutes)) * time.Minute,
		MinBookingDuration:     getEnvDuration(EnvMinBookingDuration, DefaultMinBookingDuration),
		MaxBookingDuration:     getEnvDuration(EnvMaxBookingDuration, DefaultMaxBookingDuration),
		ArrivalGrace:           getEnvDuration(EnvArrivalGrace, DefaultArrivalGrace),
		HoldTTL:                getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		ArrivalSweepInterval:   getEnvDuration(EnvArrivalSweepInterval, DefaultArrivalSweepInterval),
		CascadeRetryAttempts:   getEnvNum(EnvCascadeRetryAttempts, DefaultCascadeRetryAttempts),
		CascadeRetryBackoff:    getEnvDuration(EnvCascadeRetryBackoff, DefaultCascadeRetryBackoff),
		CascadeDenyUserPending: getEnvBool(EnvCascadeDenyUserPending, DefaultCascadeDenyUserPending),
		LockTTL:                getEnvDuration(EnvLockTTL, DefaultLockTTL),
		NotifyTimeout:          getEnvDuration(EnvNotifyTimeout, DefaultNotifyTimeout),
		PolicyFile:             getEnvStr(EnvPolicyFile, ""),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

// Defaults returns a resolved configuration built from the compiled-in
// defaults only, with in-memory backends and a discarding logger.
func Defaults() *Config {
	cfg := &Config{
		MongoURI:               DefaultMongoURI,
		MongoDatabaseName:      DefaultMongoDatabaseName,
		MongoConnTimeout:       DefaultMongoConnTimeout,
		RedisAddr:              DefaultRedisAddr,
		StorageBackend:         BackendMemory,
		HoldBackend:            BackendMemory,
		NotifyBackend:          BackendLog,
		Port:                   DefaultPort,
		JWTIssuer:              DefaultJWTIssuer,
		CORSAllowedOrigins:     splitList(DefaultCORSAllowedOrigins),
		RateLimitRequests:      DefaultRateLimitRequests,
		RateLimitWindow:        DefaultRateLimitWindow,
		RequestTimeout:         DefaultRequestTimeout,
		IdempotencyTTL:         DefaultIdempotencyTTL,
		MaxRequestSize:         DefaultMaxRequestSize,
		ReadTimeout:            DefaultReadTimeout,
		WriteTimeout:           DefaultWriteTimeout,
		IdleTimeout:            DefaultIdleTimeout,
		ShutdownTimeout:        DefaultShutdownTimeout,
		OpenTime:               DefaultOpenTime,
		CloseTime:              DefaultCloseTime,
		TimeZone:               DefaultTimeZone,
		SlotDuration:           DefaultSlotMinutes * time.Minute,
		MinBookingDuration:     DefaultMinBookingDuration,
		MaxBookingDuration:     DefaultMaxBookingDuration,
		ArrivalGrace:           DefaultArrivalGrace,
		HoldTTL:                DefaultHoldTTL,
		ArrivalSweepInterval:   DefaultArrivalSweepInterval,
		CascadeRetryAttempts:   DefaultCascadeRetryAttempts,
		CascadeRetryBackoff:    0,
		CascadeDenyUserPending: DefaultCascadeDenyUserPending,
		LockTTL:                DefaultLockTTL,
		NotifyTimeout:          DefaultNotifyTimeout,
		Log:                    logger.Discard(),
		Client:                 client.NewClient(),
	}
	if err := cfg.Resolve(); err != nil {
		panic(fmt.Sprintf("default configuration does not resolve: %v", err))
	}
	return cfg
}

// Resolve parses the operating hours, loads the time zone and reads the
// policy file if one is configured.
func (cfg *Config) Resolve() error {
	hours, err := timewindow.ParseHours(cfg.OpenTime, cfg.CloseTime)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}
	cfg.Hours = hours
	cfg.Location = loc

	cfg.Policy = &Policy{}
	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
		cfg.Policy = policy
	}
	return nil
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	timeRegex := regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	if !timeRegex.MatchString(cfg.OpenTime) {
		errors = append(errors, fmt.Sprintf("OpenTime must be in HH:MM format (00:00-23:59), got: %s", cfg.OpenTime))
	}
	if !timeRegex.MatchString(cfg.CloseTime) {
		errors = append(errors, fmt.Sprintf("CloseTime must be in HH:MM format (00:00-23:59), got: %s", cfg.CloseTime))
	}
	if timeRegex.MatchString(cfg.OpenTime) && timeRegex.MatchString(cfg.CloseTime) && cfg.CloseTime <= cfg.OpenTime {
		errors = append(errors, fmt.Sprintf("CloseTime (%s) must be after OpenTime (%s)", cfg.CloseTime, cfg.OpenTime))
	}
	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		errors = append(errors, fmt.Sprintf("TimeZone must be a valid IANA zone, got: %s", cfg.TimeZone))
	}

	switch cfg.StorageBackend {
	case BackendMongo, BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("StorageBackend must be one of [mongo, memory], got: %s", cfg.StorageBackend))
	}
	switch cfg.HoldBackend {
	case BackendRedis, BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("HoldBackend must be one of [redis, memory], got: %s", cfg.HoldBackend))
	}
	switch cfg.NotifyBackend {
	case BackendKafka, BackendLog:
	default:
		errors = append(errors, fmt.Sprintf("NotifyBackend must be one of [kafka, log], got: %s", cfg.NotifyBackend))
	}

	if cfg.StorageBackend == BackendMongo {
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	}
	if cfg.HoldBackend == BackendRedis && cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty when HoldBackend is redis")
	}

	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		errors = append(errors, fmt.Sprintf("JWTSecret must be at least 32 bytes, got: %d", len(cfg.JWTSecret)))
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

	if cfg.SlotDuration <= 0 {
		errors = append(errors, fmt.Sprintf("SlotDuration must be positive, got: %s", cfg.SlotDuration))
	}
	if cfg.MinBookingDuration <= 0 {
		errors = append(errors, fmt.Sprintf("MinBookingDuration must be positive, got: %s", cfg.MinBookingDuration))
	}
	if cfg.MaxBookingDuration < cfg.MinBookingDuration {
		errors = append(errors, fmt.Sprintf("MaxBookingDuration (%s) must be >= MinBookingDuration (%s)", cfg.MaxBookingDuration, cfg.MinBookingDuration))
	}
	if cfg.ArrivalGrace <= 0 {
		errors = append(errors, fmt.Sprintf("ArrivalGrace must be positive, got: %s", cfg.ArrivalGrace))
	}
	if cfg.HoldTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldTTL must be positive, got: %s", cfg.HoldTTL))
	}
	if cfg.ArrivalSweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("ArrivalSweepInterval must be positive, got: %s", cfg.ArrivalSweepInterval))
	}
	if cfg.CascadeRetryAttempts < 1 {
		errors = append(errors, fmt.Sprintf("CascadeRetryAttempts must be at least 1, got: %d", cfg.CascadeRetryAttempts))
	}
	if cfg.CascadeRetryBackoff < 0 {
		errors = append(errors, fmt.Sprintf("CascadeRetryBackoff cannot be negative, got: %s", cfg.CascadeRetryBackoff))
	}
	if cfg.LockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("LockTTL must be positive, got: %s", cfg.LockTTL))
	}
	if cfg.NotifyTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("NotifyTimeout must be positive, got: %s", cfg.NotifyTimeout))
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
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"storage_backend", cfg.StorageBackend,
		"hold_backend", cfg.HoldBackend,
		"notify_backend", cfg.NotifyBackend,
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"jwt_issuer", cfg.JWTIssuer,
		"cors_allowed_origins", cfg.CORSAllowedOrigins,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"operating_hours", cfg.Hours.String(),
		"time_zone", cfg.TimeZone,
		"slot_duration", cfg.SlotDuration,
		"min_booking_duration", cfg.MinBookingDuration,
		"max_booking_duration", cfg.MaxBookingDuration,
		"arrival_grace", cfg.ArrivalGrace,
		"hold_ttl", cfg.HoldTTL,
		"arrival_sweep_interval", cfg.ArrivalSweepInterval,
		"cascade_retry_attempts", cfg.CascadeRetryAttempts,
		"cascade_deny_user_pending", cfg.CascadeDenyUserPending,
		"lock_ttl", cfg.LockTTL,
		"policy_file", cfg.PolicyFile,
		"policy_categories", cfg.Policy.CategoryCount(),
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
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

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
