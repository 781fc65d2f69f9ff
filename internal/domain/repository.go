package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Activity operations
	SaveActivity(ctx context.Context, tenantID string, act *Activity) error
	GetActivity(ctx context.Context, tenantID string, actID string) (*Activity, error)
	GetActivitiesByUser(ctx context.Context, tenantID string, userID string, limit int) ([]*Activity, error)
	GetActivitiesByUserSince(ctx context.Context, tenantID string, userID string, since time.Time) ([]*Activity, error)

	// Batch analysis results
	SaveBatchResult(ctx context.Context, tenantID string, result *BatchResult) error
	GetBatchResult(ctx context.Context, tenantID string, resultID string) (*BatchResult, error)

	// Online validation results
	SaveValidation(ctx context.Context, tenantID string, val *ValidationResult) error
	GetValidationByActivity(ctx context.Context, tenantID string, actID string) (*ValidationResult, error)

	// Per-user risk scores
	SaveUserRisk(ctx context.Context, tenantID string, userID string, score *UserRiskScore) error
	GetUserRisk(ctx context.Context, tenantID string, userID string) (*UserRiskScore, error)

	// Screening rule operations
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*ScreeningRule, error)
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)
	DeleteScreeningRule(ctx context.Context, tenantID string, ruleID string) error

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
