// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
// Fields are populated from environment variables.
type Config struct {
	// Server settings
	Port int    // HTTP port to listen on
	Env  string // development, staging, production

	// Lookup cache
	DatabasePath string        // Path to SQLite file
	CacheTTL     time.Duration // How long a fetched location stays fresh

	// RedisURL switches the lookup cache to Redis when set
	RedisURL string

	// CachePurgeSchedule is a cron spec for removing stale lookups; empty disables
	CachePurgeSchedule string

	// Admin endpoints
	APIKey string

	// Open Data portal
	SourceURL          string
	SourceRadiusMeters float64
	SourceTimeout      time.Duration
	SourceRateLimit    float64 // requests per second, 0 disables pacing

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Defaults
const (
	DefaultSourceURL    = "https://data.calgary.ca/resource/jq4t-b745.json"
	DefaultDatabasePath = "./data/bincollect.db"

	DefaultCachePurgeSchedule = "@daily"
)

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	// Missing .env is fine; production sets the environment directly
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.Env = getEnv("ENV", EnvDevelopment)

	cfg.DatabasePath = getEnv("DATABASE_PATH", DefaultDatabasePath)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 24*time.Hour)
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.CachePurgeSchedule = getEnv("CACHE_PURGE_SCHEDULE", DefaultCachePurgeSchedule)
	if cfg.CachePurgeSchedule == "off" {
		cfg.CachePurgeSchedule = ""
	}

	cfg.APIKey = getEnv("API_KEY", "")

	cfg.SourceURL = getEnv("SOURCE_URL", DefaultSourceURL)
	cfg.SourceRadiusMeters = getEnvFloat("SOURCE_RADIUS_METERS", 50)
	cfg.SourceTimeout = getEnvDuration("SOURCE_TIMEOUT", 10*time.Second)
	cfg.SourceRateLimit = getEnvFloat("SOURCE_RATE_LIMIT", 2)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production; got %q", c.Env))
	}

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}

	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL))
	}

	if c.RedisURL != "" {
		if _, err := redis.ParseURL(c.RedisURL); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_URL is invalid: %w", err))
		}
	}

	if c.CachePurgeSchedule != "" {
		sched, err := cron.ParseStandard(c.CachePurgeSchedule)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("CACHE_PURGE_SCHEDULE is invalid: %w", err))
		case sched.Next(time.Now()).IsZero():
			errs = append(errs, fmt.Errorf("CACHE_PURGE_SCHEDULE %q never fires", c.CachePurgeSchedule))
		}
	}

	// Cache purging is the only admin action, but it still needs a key in production
	if c.Env == EnvProduction && c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required in production"))
	}

	if u, err := url.Parse(c.SourceURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SOURCE_URL must be an absolute URL, got %q", c.SourceURL))
	}

	if c.SourceRadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("SOURCE_RADIUS_METERS must be positive, got %v", c.SourceRadiusMeters))
	}

	if c.SourceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SOURCE_TIMEOUT must be positive, got %s", c.SourceTimeout))
	}

	if c.SourceRateLimit < 0 {
		errs = append(errs, fmt.Errorf("SOURCE_RATE_LIMIT must not be negative, got %v", c.SourceRateLimit))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, text; got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// getEnv reads an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings such as "90s" or "24h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
