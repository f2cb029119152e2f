package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (usage cache)
	Redis RedisConfig

	// Quota enforcement configuration
	Quota QuotaConfig

	// Daily advance configuration
	Advance AdvanceConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the usage-cache settings. The cache is optional; with
// Enabled false every quota check counts usage straight from the database.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// QuotaConfig holds quota enforcement settings
type QuotaConfig struct {
	// FailOpen allows requests through when the quota check itself fails
	// (database or cache outage). Disable to deny on infrastructure errors.
	FailOpen bool
}

// AdvanceConfig holds the daily billing-cycle advance settings
type AdvanceConfig struct {
	// Schedule is a cron expression; the default runs once a day at midnight UTC.
	Schedule           string
	MaxConflictRetries int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Quota:         loadQuotaConfig(),
		Advance:       loadAdvanceConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TOLLGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TOLLGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TOLLGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TOLLGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TOLLGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TOLLGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TOLLGATE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("TOLLGATE_POSTGRES_URL", "postgres://localhost:5432/tollgate?sslmode=disable"),
		MaxOpenConns:    getEnvInt("TOLLGATE_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("TOLLGATE_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("TOLLGATE_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads the usage-cache configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("TOLLGATE_REDIS_ENABLED", false),
		Addr:     getEnv("TOLLGATE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("TOLLGATE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TOLLGATE_REDIS_DB", 0),
		CacheTTL: getEnvDuration("TOLLGATE_USAGE_CACHE_TTL", 30*time.Second),
	}
}

// loadQuotaConfig loads quota enforcement configuration from environment
func loadQuotaConfig() QuotaConfig {
	return QuotaConfig{
		FailOpen: getEnvBool("TOLLGATE_QUOTA_FAIL_OPEN", true),
	}
}

// loadAdvanceConfig loads the daily advance configuration from environment
func loadAdvanceConfig() AdvanceConfig {
	return AdvanceConfig{
		Schedule:           getEnv("TOLLGATE_ADVANCE_SCHEDULE", "0 0 * * *"),
		MaxConflictRetries: getEnvInt("TOLLGATE_ADVANCE_MAX_RETRIES", 3),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("TOLLGATE_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("TOLLGATE_METRICS_ENABLED", true),
	}
}

// Validate checks the configuration for invalid combinations
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres url is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when the usage cache is enabled")
	}
	if c.Advance.Schedule == "" {
		return fmt.Errorf("advance schedule is required")
	}
	if c.Advance.MaxConflictRetries < 1 {
		return fmt.Errorf("advance max retries must be at least 1")
	}
	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
