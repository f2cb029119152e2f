// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	TOLLGATE_HOST="0.0.0.0"
//	TOLLGATE_PORT="8080"
//	TOLLGATE_HEALTH_PORT="9090"
//	TOLLGATE_READ_TIMEOUT="15s"
//	TOLLGATE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	TOLLGATE_POSTGRES_URL="postgres://localhost/tollgate"
//	TOLLGATE_POSTGRES_MAX_CONNS="25"
//	TOLLGATE_POSTGRES_IDLE_CONNS="5"
//
// Usage cache settings:
//
//	TOLLGATE_REDIS_ENABLED="true"
//	TOLLGATE_REDIS_ADDR="localhost:6379"
//	TOLLGATE_USAGE_CACHE_TTL="30s"
//
// Quota and billing-cycle settings:
//
//	TOLLGATE_QUOTA_FAIL_OPEN="true"   # allow requests when the check itself fails
//	TOLLGATE_ADVANCE_SCHEDULE="0 0 * * *"
//	TOLLGATE_ADVANCE_MAX_RETRIES="3"
//
// Observability settings:
//
//	TOLLGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	TOLLGATE_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Fail open: %v\n", cfg.Quota.FailOpen)
//
// # Related Packages
//
//   - pkg/quota: Uses quota configuration
//   - pkg/cycle: Uses advance configuration
//   - pkg/observability: Uses observability configuration
package config
