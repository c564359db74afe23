// Package domain defines the core interfaces and types for the LSP analytics service.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Activity operations
	SaveActivity(ctx context.Context, tenantID string, ev *ActivityEvent) error
	GetActivity(ctx context.Context, tenantID string, activityID string) (*ActivityEvent, error)
	ListActivitiesByUser(ctx context.Context, tenantID string, userID string, since time.Time) ([]*ActivityEvent, error)
	ListUserIDs(ctx context.Context, tenantID string) ([]string, error)

	// Capability estimates, keyed by dimension name
	SaveCapabilities(ctx context.Context, tenantID string, userID string, scores map[string]CapabilityEstimate) error
	GetCapabilities(ctx context.Context, tenantID string, userID string) (map[string]CapabilityEstimate, error)

	// Fraud assessments
	SaveAssessment(ctx context.Context, tenantID string, a *FraudAssessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*FraudAssessment, error)

	// Discovered patterns
	SavePattern(ctx context.Context, tenantID string, p *BehaviorPattern) error
	ListPatterns(ctx context.Context, tenantID string) ([]*BehaviorPattern, error)

	// Wellbeing assessments
	SaveWellbeing(ctx context.Context, tenantID string, w *WellbeingAssessment) error

	// Alert rule operations
	SaveAlertRule(ctx context.Context, tenantID string, rule *AlertRule) error
	GetAlertRule(ctx context.Context, tenantID string, ruleID string) (*AlertRule, error)
	ListAlertRules(ctx context.Context, tenantID string) ([]*AlertRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlitepath"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgreshost"`
	PostgresPort     int    `koanf:"postgresport"`
	PostgresUser     string `koanf:"postgresuser"`
	PostgresPassword string `koanf:"postgrespassword"`
	PostgresDB       string `koanf:"postgresdb"`
	PostgresSSLMode  string `koanf:"postgressslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"maxopenconns"`
	MaxIdleConns    int           `koanf:"maxidleconns"`
	ConnMaxLifetime time.Duration `koanf:"connmaxlifetime"`
}
