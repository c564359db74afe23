package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for per-user activity counts within a window.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache key builders shared by the pipeline and the API.
const (
	cacheKeyPatterns  = "patterns"
	cacheKeyWellbeing = "wellbeing:"
	cacheKeyActivity  = "activity-count:"
)

// PatternsCacheKey is the key of the last discovered pattern list.
func PatternsCacheKey() string { return cacheKeyPatterns }

// WellbeingCacheKey is the key of a user's last wellbeing assessment.
func WellbeingCacheKey(userID string) string { return cacheKeyWellbeing + userID }

// ActivityCounterKey is the key of a user's rolling activity counter.
func ActivityCounterKey(userID string) string { return cacheKeyActivity + userID }

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `koanf:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `koanf:"localmaxsize"`
	LocalTTL     time.Duration `koanf:"localttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `koanf:"redisaddr"`
	RedisPassword string `koanf:"redispassword"`
	RedisDB       int    `koanf:"redisdb"`

	// Two-phase settings
	EnableTwoPhase bool `koanf:"enabletwophase"` // If true, check local first, then Redis
}
