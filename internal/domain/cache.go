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

	// GetScore retrieves a cached score result.
	GetScore(ctx context.Context, tenantID string, scoreID string) (*ScoreSummary, error)

	// SetScore caches a score result for fast lookups.
	SetScore(ctx context.Context, tenantID string, scoreID string, data *ScoreSummary, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for windowed statistics (e.g., flags in the last hour).
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ScoreSummary is the compact score representation held in cache.
type ScoreSummary struct {
	TxID        string    `json:"txId"`
	Status      string    `json:"status"`
	Probability float64   `json:"prob"`
	Confidence  float64   `json:"conf"`
	Threshold   float64   `json:"thr"`
	Timestamp   time.Time `json:"timestamp"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
