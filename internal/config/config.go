// Package config provides configuration management for the caching engine.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration before the engine starts.
//
// Environment Variables:
//
// Application Settings:
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file path (default: stdout)
//
// Cache Backend:
//   - CACHE_BACKEND: "memory", "redis" or "hybrid" (default: memory)
//   - CACHE_PREFIX: Key prefix for the Redis namespace (default: cache:)
//   - CACHE_L1_TTL: L1 residency TTL for the hybrid backend (default: 60s)
//   - CACHE_CLEANUP_INTERVAL: Janitor interval for the memory backend, 0
//     disables it (default: 10m)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - REDIS_BREAKER_ENABLED: Circuit-break Redis round trips (default: false)
//
// SWR Settings:
//   - SWR_TTL: Freshness window (default: 60s)
//   - SWR_STALE_TTL: Stale grace window (default: 30s)
//   - SWR_LOCK_TTL: Refresh lock TTL, 0 derives it from SWR_STALE_TTL
//   - SWR_ENABLE_LOCK: Single-flight refresh locking (default: true)
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agkloop/advanced-caching/internal/common/errors"
)

// Backend identifies which storage backend the engine runs on.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendHybrid Backend = "hybrid"
)

// Config holds all configuration values for the caching engine.
type Config struct {
	// Application settings
	LogLevel string

	// Cache backend selection
	CacheBackend    Backend
	CachePrefix     string
	L1TTL           time.Duration
	CleanupInterval time.Duration

	// Redis configuration
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	RedisPoolSize  int
	BreakerEnabled bool

	// SWR settings
	SWRTTL        time.Duration
	SWRStaleTTL   time.Duration
	SWRLockTTL    time.Duration
	SWREnableLock bool
}

// Load creates a new Config with values from environment variables. It does
// not validate; call Validate on the result before use.
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CacheBackend:    Backend(strings.ToLower(getEnv("CACHE_BACKEND", "memory"))),
		CachePrefix:     getEnv("CACHE_PREFIX", "cache:"),
		L1TTL:           getDurationEnv("CACHE_L1_TTL", 60*time.Second),
		CleanupInterval: getDurationEnv("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		RedisPoolSize:  getIntEnv("REDIS_POOL_SIZE", 10),
		BreakerEnabled: getBoolEnv("REDIS_BREAKER_ENABLED", false),

		SWRTTL:        getDurationEnv("SWR_TTL", 60*time.Second),
		SWRStaleTTL:   getDurationEnv("SWR_STALE_TTL", 30*time.Second),
		SWRLockTTL:    getDurationEnv("SWR_LOCK_TTL", 0),
		SWREnableLock: getBoolEnv("SWR_ENABLE_LOCK", true),
	}
}

// Validate ensures all values are usable before the engine starts.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendRedis, BackendHybrid:
	default:
		return errors.ConfigError("CACHE_BACKEND must be memory, redis or hybrid").
			WithContext("value", string(c.CacheBackend))
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return errors.ConfigError("REDIS_DB must be between 0 and 15").
			WithContext("value", c.RedisDB)
	}

	if c.RedisPoolSize <= 0 {
		return errors.ConfigError("REDIS_POOL_SIZE must be positive").
			WithContext("value", c.RedisPoolSize)
	}

	if c.CacheBackend == BackendHybrid && c.L1TTL <= 0 {
		return errors.ConfigError("CACHE_L1_TTL must be positive for the hybrid backend")
	}

	if c.CleanupInterval < 0 {
		return errors.ConfigError("CACHE_CLEANUP_INTERVAL must not be negative")
	}

	return nil
}

// getEnv retrieves an environment variable value or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or a default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or a default.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable value or a
// default. Plain integers are read as seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
