// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openathletics/stridewatch/internal/domain"
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
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
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

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
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

// SaveActivity stores an activity record with tenant isolation.
func (r *SQLRepository) SaveActivity(ctx context.Context, tenantID string, act *domain.Activity) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO activities (
			id, tenant_id, user_id, total_steps, total_distance,
			time_taken, avg_speed, avg_heart_rate,
			very_active_minutes, very_active_distance,
			timestamp, created_at, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		act.ID, tenantID, act.UserID,
		act.TotalSteps, act.TotalDistance,
		act.TimeTaken, act.AvgSpeed, act.AvgHeartRate,
		act.VeryActiveMinutes, act.VeryActiveDistance,
		act.Timestamp, act.CreatedAt, act.Source,
	)
	return err
}

// GetActivity retrieves an activity by ID with tenant isolation.
func (r *SQLRepository) GetActivity(ctx context.Context, tenantID string, actID string) (*domain.Activity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, user_id, total_steps, total_distance,
			   time_taken, avg_speed, avg_heart_rate,
			   very_active_minutes, very_active_distance,
			   timestamp, created_at, source
		FROM activities
		WHERE tenant_id = ? AND id = ?
	`

	var act domain.Activity
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, actID).Scan(
		&act.ID, &act.TenantID, &act.UserID,
		&act.TotalSteps, &act.TotalDistance,
		&act.TimeTaken, &act.AvgSpeed, &act.AvgHeartRate,
		&act.VeryActiveMinutes, &act.VeryActiveDistance,
		&act.Timestamp, &act.CreatedAt, &act.Source,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &act, nil
}

// GetActivitiesByUser retrieves a user's most recent activities.
func (r *SQLRepository) GetActivitiesByUser(ctx context.Context, tenantID string, userID string, limit int) ([]*domain.Activity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, user_id, total_steps, total_distance,
			   time_taken, avg_speed, avg_heart_rate,
			   very_active_minutes, very_active_distance,
			   timestamp, created_at, source
		FROM activities
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// GetActivitiesByUserSince retrieves a user's activities since a point in time.
func (r *SQLRepository) GetActivitiesByUserSince(ctx context.Context, tenantID string, userID string, since time.Time) ([]*domain.Activity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, user_id, total_steps, total_distance,
			   time_taken, avg_speed, avg_heart_rate,
			   very_active_minutes, very_active_distance,
			   timestamp, created_at, source
		FROM activities
		WHERE tenant_id = ? AND user_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

func scanActivities(rows *sql.Rows) ([]*domain.Activity, error) {
	var activities []*domain.Activity
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(
			&act.ID, &act.TenantID, &act.UserID,
			&act.TotalSteps, &act.TotalDistance,
			&act.TimeTaken, &act.AvgSpeed, &act.AvgHeartRate,
			&act.VeryActiveMinutes, &act.VeryActiveDistance,
			&act.Timestamp, &act.CreatedAt, &act.Source,
		); err != nil {
			return nil, err
		}
		activities = append(activities, &act)
	}
	return activities, rows.Err()
}

// SaveBatchResult stores a batch analysis result with tenant isolation.
// The full result is stored as JSON alongside queryable summary columns.
func (r *SQLRepository) SaveBatchResult(ctx context.Context, tenantID string, result *domain.BatchResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal batch result: %w", err)
	}

	query := `
		INSERT INTO analyses (
			id, tenant_id, total_records, total_fraud_records, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.TotalRecords, result.TotalFraudRecords,
		string(payload), result.CreatedAt,
	)
	return err
}

// GetBatchResult retrieves a batch analysis result by ID with tenant isolation.
func (r *SQLRepository) GetBatchResult(ctx context.Context, tenantID string, resultID string) (*domain.BatchResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT result FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, resultID).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.BatchResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to parse batch result: %w", err)
	}
	result.TenantID = tenantID
	return &result, nil
}

// SaveValidation stores an online validation result with tenant isolation.
func (r *SQLRepository) SaveValidation(ctx context.Context, tenantID string, val *domain.ValidationResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO validations (
			id, tenant_id, activity_id, user_id,
			approval_status, fraud_risk, fraud_type, review_note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		val.ID, tenantID, val.ActivityID, val.UserID,
		val.ApprovalStatus, val.FraudRisk, val.FraudType, val.ReviewNote,
		val.CreatedAt,
	)
	return err
}

// GetValidationByActivity retrieves the latest validation for an activity.
func (r *SQLRepository) GetValidationByActivity(ctx context.Context, tenantID string, actID string) (*domain.ValidationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, activity_id, user_id,
			   approval_status, fraud_risk, fraud_type, review_note, created_at
		FROM validations
		WHERE tenant_id = ? AND activity_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var val domain.ValidationResult
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, actID).Scan(
		&val.ID, &val.TenantID, &val.ActivityID, &val.UserID,
		&val.ApprovalStatus, &val.FraudRisk, &val.FraudType, &val.ReviewNote,
		&val.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &val, nil
}

// SaveUserRisk upserts a user's risk score with tenant isolation.
func (r *SQLRepository) SaveUserRisk(ctx context.Context, tenantID string, userID string, score *domain.UserRiskScore) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO user_risks (
			tenant_id, user_id, risk_score, risk_level,
			fraud_count, total_activities, fraud_ratio, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id) DO UPDATE SET
			risk_score = excluded.risk_score,
			risk_level = excluded.risk_level,
			fraud_count = excluded.fraud_count,
			total_activities = excluded.total_activities,
			fraud_ratio = excluded.fraud_ratio,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, userID, score.RiskScore, score.RiskLevel,
		score.FraudCount, score.TotalActivities, score.FraudRatio,
		time.Now().UTC(),
	)
	return err
}

// GetUserRisk retrieves a user's stored risk score with tenant isolation.
func (r *SQLRepository) GetUserRisk(ctx context.Context, tenantID string, userID string) (*domain.UserRiskScore, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT risk_score, risk_level, fraud_count, total_activities, fraud_ratio
		FROM user_risks
		WHERE tenant_id = ? AND user_id = ?
	`

	var score domain.UserRiskScore
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, userID).Scan(
		&score.RiskScore, &score.RiskLevel,
		&score.FraudCount, &score.TotalActivities, &score.FraudRatio,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &score, nil
}

// SaveScreeningRule stores a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, version, expression,
			risk, category, note, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			risk = excluded.risk,
			category = excluded.category,
			note = excluded.note,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression,
		rule.Risk, rule.Category, rule.Note, enabled,
		now, now,
	)
	return err
}

// GetScreeningRule retrieves an enabled screening rule with tenant isolation.
func (r *SQLRepository) GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression,
			   risk, category, note, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.ScreeningRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression,
		&rule.Risk, &rule.Category, &rule.Note, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListScreeningRules retrieves all active screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression,
			   risk, category, note, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression,
			&rule.Risk, &rule.Category, &rule.Note, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteScreeningRule soft-deletes a screening rule by setting enabled = 0.
func (r *SQLRepository) DeleteScreeningRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE screening_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
