// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	CountTransactionsSince(ctx context.Context, tenantID string, since time.Time) (int64, error)

	// Score results
	SaveScore(ctx context.Context, tenantID string, score *ScoreResult) error
	GetScore(ctx context.Context, tenantID string, scoreID string) (*ScoreResult, error)
	CountScoresSince(ctx context.Context, tenantID string, status string, since time.Time) (int64, error)

	// Alert policy operations
	SaveAlertPolicy(ctx context.Context, tenantID string, policy *AlertPolicy) error
	GetAlertPolicy(ctx context.Context, tenantID string, policyID string) (*AlertPolicy, error)
	ListAlertPolicies(ctx context.Context, tenantID string) ([]*AlertPolicy, error)
	DeleteAlertPolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
