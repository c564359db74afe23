// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

// SaveActivity stores an activity event. Re-delivered events with a known
// ID are ignored.
func (r *SQLRepository) SaveActivity(ctx context.Context, tenantID string, ev *domain.ActivityEvent) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if ev.ID == "" || ev.UserID == "" {
		return fmt.Errorf("%w: activity id and user id are required", ErrInvalidInput)
	}

	metrics, _ := json.Marshal(ev.PerformanceMetrics)
	dims, _ := json.Marshal(ev.TargetDimensions)

	var difficulty sql.NullFloat64
	if ev.Difficulty != nil {
		difficulty = sql.NullFloat64{Float64: *ev.Difficulty, Valid: true}
	}

	query := `
		INSERT INTO activity_events (
			id, tenant_id, user_id, domain, activity_type, engagement,
			session_id, sequence_position, difficulty, performance_metrics,
			target_dimensions, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ev.ID, tenantID, ev.UserID, string(ev.Domain), ev.ActivityType, ev.EngagementLevel,
		ev.SessionID, ev.SequencePosition, difficulty, string(metrics),
		string(dims), ev.Timestamp.UTC(),
	)
	return err
}

const activityColumns = `
	id, tenant_id, user_id, domain, activity_type, engagement,
	session_id, sequence_position, difficulty, performance_metrics,
	target_dimensions, timestamp
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*domain.ActivityEvent, error) {
	var ev domain.ActivityEvent
	var dom string
	var difficulty sql.NullFloat64
	var metrics, dims sql.NullString

	if err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.UserID, &dom, &ev.ActivityType, &ev.EngagementLevel,
		&ev.SessionID, &ev.SequencePosition, &difficulty, &metrics,
		&dims, &ev.Timestamp,
	); err != nil {
		return nil, err
	}

	ev.Domain = domain.ActivityDomain(dom)
	ev.Timestamp = ev.Timestamp.UTC()
	if difficulty.Valid {
		d := difficulty.Float64
		ev.Difficulty = &d
	}
	if metrics.Valid && metrics.String != "" && metrics.String != "null" {
		if err := json.Unmarshal([]byte(metrics.String), &ev.PerformanceMetrics); err != nil {
			return nil, fmt.Errorf("failed to parse performance metrics for %s: %w", ev.ID, err)
		}
	}
	if dims.Valid && dims.String != "" && dims.String != "null" {
		if err := json.Unmarshal([]byte(dims.String), &ev.TargetDimensions); err != nil {
			return nil, fmt.Errorf("failed to parse target dimensions for %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

// GetActivity retrieves an activity by ID with tenant isolation.
func (r *SQLRepository) GetActivity(ctx context.Context, tenantID string, activityID string) (*domain.ActivityEvent, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + activityColumns + ` FROM activity_events WHERE tenant_id = ? AND id = ?`

	ev, err := scanActivity(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, activityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// ListActivitiesByUser returns a user's activities at or after since, oldest first.
func (r *SQLRepository) ListActivitiesByUser(ctx context.Context, tenantID string, userID string, since time.Time) ([]*domain.ActivityEvent, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + activityColumns + `
		FROM activity_events
		WHERE tenant_id = ? AND user_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC, sequence_position ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.ActivityEvent
	for rows.Next() {
		ev, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListUserIDs returns every user with at least one stored activity.
func (r *SQLRepository) ListUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT DISTINCT user_id FROM activity_events WHERE tenant_id = ? ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveCapabilities upserts a user's capability estimates in one transaction.
func (r *SQLRepository) SaveCapabilities(ctx context.Context, tenantID string, userID string, scores map[string]domain.CapabilityEstimate) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if len(scores) == 0 {
		return nil
	}

	query := r.rebind(`
		INSERT INTO capability_scores (
			tenant_id, user_id, dimension, mean, variance, confidence, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, dimension) DO UPDATE SET
			mean = excluded.mean,
			variance = excluded.variance,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for dim, est := range scores {
		if _, err := tx.ExecContext(ctx, query,
			tenantID, userID, dim, est.Mean, est.Variance, est.Confidence, now,
		); err != nil {
			return fmt.Errorf("failed to save %s: %w", dim, err)
		}
	}
	return tx.Commit()
}

// GetCapabilities returns the stored estimates of a user, keyed by dimension
// name. A user with no estimates yields an empty map.
func (r *SQLRepository) GetCapabilities(ctx context.Context, tenantID string, userID string) (map[string]domain.CapabilityEstimate, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT dimension, mean, variance, confidence
		FROM capability_scores
		WHERE tenant_id = ? AND user_id = ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.CapabilityEstimate)
	for rows.Next() {
		var dim string
		var est domain.CapabilityEstimate
		if err := rows.Scan(&dim, &est.Mean, &est.Variance, &est.Confidence); err != nil {
			return nil, err
		}
		out[dim] = est
	}
	return out, rows.Err()
}

// SaveAssessment stores a fraud assessment with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.FraudAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	signals, err := json.Marshal(a.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}

	query := `
		INSERT INTO fraud_assessments (
			id, tenant_id, user_id, activity_id, is_suspicious, risk_score,
			recommendation, reasoning, signals, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.UserID, a.ActivityID, boolInt(a.IsSuspicious), a.RiskScore,
		string(a.Recommendation), a.Reasoning, string(signals), a.Timestamp.UTC(),
	)
	return err
}

// GetAssessment retrieves a fraud assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.FraudAssessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, user_id, activity_id, is_suspicious, risk_score,
			   recommendation, reasoning, signals, timestamp
		FROM fraud_assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.FraudAssessment
	var suspicious int
	var rec, signals string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(
		&a.ID, &a.TenantID, &a.UserID, &a.ActivityID, &suspicious, &a.RiskScore,
		&rec, &a.Reasoning, &signals, &a.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.IsSuspicious = suspicious == 1
	a.Recommendation = domain.Recommendation(rec)
	a.Timestamp = a.Timestamp.UTC()
	if err := json.Unmarshal([]byte(signals), &a.Signals); err != nil {
		return nil, fmt.Errorf("failed to parse signals: %w", err)
	}
	return &a, nil
}

// SavePattern upserts a discovered pattern. Each discovery run overwrites
// the patterns of the previous run that share an ID.
func (r *SQLRepository) SavePattern(ctx context.Context, tenantID string, p *domain.BehaviorPattern) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}

	query := `
		INSERT INTO behavior_patterns (
			id, tenant_id, name, description, status, strength, consistency,
			member_count, body, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			status = excluded.status,
			strength = excluded.strength,
			consistency = excluded.consistency,
			member_count = excluded.member_count,
			body = excluded.body,
			discovered_at = excluded.discovered_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Description, string(p.Status), p.Strength, p.Consistency,
		p.MemberCount, string(body), p.DiscoveredAt.UTC(),
	)
	return err
}

// ListPatterns returns the tenant's stored patterns ordered by ID.
func (r *SQLRepository) ListPatterns(ctx context.Context, tenantID string) ([]*domain.BehaviorPattern, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT body FROM behavior_patterns WHERE tenant_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.BehaviorPattern
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var p domain.BehaviorPattern
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("failed to parse pattern: %w", err)
		}
		p.TenantID = tenantID
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

// SaveWellbeing stores a wellbeing assessment, replacing any earlier one
// with the same as-of time.
func (r *SQLRepository) SaveWellbeing(ctx context.Context, tenantID string, w *domain.WellbeingAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode wellbeing assessment: %w", err)
	}

	query := `
		INSERT INTO wellbeing_assessments (
			tenant_id, user_id, as_of, overall_score, intervention, body
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, as_of) DO UPDATE SET
			overall_score = excluded.overall_score,
			intervention = excluded.intervention,
			body = excluded.body
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, w.UserID, w.AsOf.UTC(), w.OverallScore, boolInt(w.InterventionRecommended), string(body),
	)
	return err
}

// SaveAlertRule stores an alert rule with tenant isolation.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, tenantID string, rule *domain.AlertRule) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	bands, _ := json.Marshal(rule.Bands)
	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), boolInt(rule.Enabled),
		now, now,
	)
	return err
}

// GetAlertRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetAlertRule(ctx context.Context, tenantID string, ruleID string) (*domain.AlertRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM alert_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	rule, err := scanAlertRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListAlertRules retrieves all enabled alert rules for a tenant. Versions of
// the same rule are returned oldest first.
func (r *SQLRepository) ListAlertRules(ctx context.Context, tenantID string) ([]*domain.AlertRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM alert_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name, id, version
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanAlertRule(row rowScanner) (*domain.AlertRule, error) {
	var rule domain.AlertRule
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&rule.Version, &rule.Expression, &bands, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &rule.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	result := make([]byte, 0, len(query)+8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

var _ domain.Repository = (*SQLRepository)(nil)
