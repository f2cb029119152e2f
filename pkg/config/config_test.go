package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("Server.HealthPort = %q, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false by default")
	}
	if !cfg.Quota.FailOpen {
		t.Error("Quota.FailOpen = false, want true by default")
	}
	if cfg.Advance.Schedule != "0 0 * * *" {
		t.Errorf("Advance.Schedule = %q, want midnight daily", cfg.Advance.Schedule)
	}
	if cfg.Advance.MaxConflictRetries != 3 {
		t.Errorf("Advance.MaxConflictRetries = %d, want 3", cfg.Advance.MaxConflictRetries)
	}
	if cfg.Redis.CacheTTL != 30*time.Second {
		t.Errorf("Redis.CacheTTL = %v, want 30s", cfg.Redis.CacheTTL)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TOLLGATE_PORT", "8081")
	t.Setenv("TOLLGATE_POSTGRES_URL", "postgres://db:5432/billing")
	t.Setenv("TOLLGATE_REDIS_ENABLED", "true")
	t.Setenv("TOLLGATE_REDIS_ADDR", "redis:6379")
	t.Setenv("TOLLGATE_QUOTA_FAIL_OPEN", "false")
	t.Setenv("TOLLGATE_ADVANCE_MAX_RETRIES", "5")
	t.Setenv("TOLLGATE_USAGE_CACHE_TTL", "2m")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8081" {
		t.Errorf("Server.Port = %q, want 8081", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://db:5432/billing" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true")
	}
	if cfg.Quota.FailOpen {
		t.Error("Quota.FailOpen = true, want false")
	}
	if cfg.Advance.MaxConflictRetries != 5 {
		t.Errorf("Advance.MaxConflictRetries = %d, want 5", cfg.Advance.MaxConflictRetries)
	}
	if cfg.Redis.CacheTTL != 2*time.Minute {
		t.Errorf("Redis.CacheTTL = %v, want 2m", cfg.Redis.CacheTTL)
	}
}

func TestLoadConfig_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("TOLLGATE_ADVANCE_MAX_RETRIES", "not-a-number")
	t.Setenv("TOLLGATE_USAGE_CACHE_TTL", "soon")
	t.Setenv("TOLLGATE_REDIS_ENABLED", "maybe")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Advance.MaxConflictRetries != 3 {
		t.Errorf("Advance.MaxConflictRetries = %d, want default 3", cfg.Advance.MaxConflictRetries)
	}
	if cfg.Redis.CacheTTL != 30*time.Second {
		t.Errorf("Redis.CacheTTL = %v, want default 30s", cfg.Redis.CacheTTL)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want default false")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{URL: "postgres://localhost:5432/tollgate"},
			Redis:    RedisConfig{},
			Advance:  AdvanceConfig{Schedule: "0 0 * * *", MaxConflictRetries: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing server port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: true,
		},
		{
			name:    "server and health port collide",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: true,
		},
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: true,
		},
		{
			name:    "redis enabled without addr",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
			wantErr: true,
		},
		{
			name:    "redis enabled with addr",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "localhost:6379" },
			wantErr: false,
		},
		{
			name:    "missing advance schedule",
			mutate:  func(c *Config) { c.Advance.Schedule = "" },
			wantErr: true,
		},
		{
			name:    "zero conflict retries",
			mutate:  func(c *Config) { c.Advance.MaxConflictRetries = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}
