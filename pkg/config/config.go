package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Busy-source failure policies.
const (
	FailurePolicyAssumeBusy = "assume_busy"
	FailurePolicyAssumeFree = "assume_free"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv        string
	LogLevel      string
	LogFormat     string
	Version       string
	EncryptionKey string

	// Database. An empty DatabaseURL selects local SQLite at SQLitePath.
	DatabaseURL      string
	SQLitePath       string
	DatabaseMaxConns int
	AutoMigrate      bool

	// Redis. Empty selects the in-process resource locker.
	RedisURL string

	// RabbitMQ. Empty selects the in-process event bus.
	RabbitMQURL string

	// Transports
	HTTPAddr         string
	MCPAddr          string
	MCPAuthToken     string
	WorkerHealthAddr string

	// Busy-time sources
	BusySourceTimeout       time.Duration
	BusySourceFailurePolicy string
	BusySourceConcurrency   int
	BreakerMaxFailures      int
	BreakerOpenTimeout      time.Duration

	// Reservation
	ReserveMaxAttempts int
	ReserveBackoffBase time.Duration
	ReserveBackoffMax  time.Duration
	ReserveTimeout     time.Duration
	LockTTL            time.Duration

	// Recurrence
	RecurrenceMaxOccurrences int

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxStatsInterval    time.Duration
	OutboxProcessorEnabled bool

	// Calendar providers
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenant       string
	OAuthRedirectURL      string
	CalDAVEnabled         bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	return load()
}

// LoadFile loads the given dotenv file before reading the environment.
// Variables already set in the environment win. An empty path behaves
// like Load.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return load()
}

func load() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		Version:       getEnv("SLOTWISE_VERSION", "dev"),
		EncryptionKey: getEnv("SLOTWISE_ENCRYPTION_KEY", ""),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SQLitePath:       getEnv("SQLITE_PATH", defaultSQLitePath()),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),
		AutoMigrate:      getBoolEnv("AUTO_MIGRATE", true),

		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		HTTPAddr:         getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		MCPAddr:          getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken:     getEnv("MCP_AUTH_TOKEN", ""),
		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		BusySourceTimeout:       getDurationEnv("BUSY_SOURCE_TIMEOUT", 3*time.Second),
		BusySourceFailurePolicy: getEnv("BUSY_SOURCE_FAILURE_POLICY", FailurePolicyAssumeBusy),
		BusySourceConcurrency:   getIntEnv("BUSY_SOURCE_CONCURRENCY", 8),
		BreakerMaxFailures:      getIntEnv("BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout:      getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		ReserveMaxAttempts: getIntEnv("RESERVE_MAX_ATTEMPTS", 4),
		ReserveBackoffBase: getDurationEnv("RESERVE_BACKOFF_BASE", 25*time.Millisecond),
		ReserveBackoffMax:  getDurationEnv("RESERVE_BACKOFF_MAX", 400*time.Millisecond),
		ReserveTimeout:     getDurationEnv("RESERVE_TIMEOUT", 5*time.Second),
		LockTTL:            getDurationEnv("LOCK_TTL", 10*time.Second),

		RecurrenceMaxOccurrences: getIntEnv("RECURRENCE_MAX_OCCURRENCES", 52),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 250*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 8),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", time.Minute),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftTenant:       getEnv("MICROSOFT_TENANT", "common"),
		OAuthRedirectURL:      getEnv("OAUTH_REDIRECT_URL", "http://localhost:8080/oauth/callback"),
		CalDAVEnabled:         getBoolEnv("CALDAV_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.BusySourceFailurePolicy {
	case FailurePolicyAssumeBusy, FailurePolicyAssumeFree:
	default:
		errs = append(errs, fmt.Errorf("BUSY_SOURCE_FAILURE_POLICY must be %q or %q, got %q",
			FailurePolicyAssumeBusy, FailurePolicyAssumeFree, c.BusySourceFailurePolicy))
	}
	if c.ReserveMaxAttempts < 1 {
		errs = append(errs, errors.New("RESERVE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.BusySourceTimeout <= 0 {
		errs = append(errs, errors.New("BUSY_SOURCE_TIMEOUT must be positive"))
	}
	if c.ReserveTimeout <= 0 {
		errs = append(errs, errors.New("RESERVE_TIMEOUT must be positive"))
	}
	if c.RecurrenceMaxOccurrences < 1 {
		errs = append(errs, errors.New("RECURRENCE_MAX_OCCURRENCES must be at least 1"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LocalMode reports whether the service runs on SQLite without a broker.
func (c *Config) LocalMode() bool {
	return c.DatabaseURL == ""
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".slotwise", "slotwise.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
