package repository

// Schema definitions for the StrideWatch database.
// Compatible with both SQLite and PostgreSQL.

const schemaActivities = `
CREATE TABLE IF NOT EXISTS activities (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    total_steps REAL NOT NULL,
    total_distance REAL NOT NULL,
    time_taken REAL NOT NULL,
    avg_speed REAL NOT NULL DEFAULT 0,
    avg_heart_rate REAL NOT NULL DEFAULT 0,
    very_active_minutes REAL NOT NULL DEFAULT 0,
    very_active_distance REAL NOT NULL DEFAULT 0,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    source TEXT
);

CREATE INDEX IF NOT EXISTS idx_activities_tenant ON activities(tenant_id);
CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(tenant_id, user_id);
CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON activities(tenant_id, timestamp);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    total_records INTEGER NOT NULL,
    total_fraud_records INTEGER NOT NULL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(tenant_id, created_at);
`

const schemaValidations = `
CREATE TABLE IF NOT EXISTS validations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    activity_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    approval_status TEXT NOT NULL,
    fraud_risk REAL NOT NULL,
    fraud_type TEXT NOT NULL,
    review_note TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_tenant ON validations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_validations_activity ON validations(tenant_id, activity_id);
CREATE INDEX IF NOT EXISTS idx_validations_status ON validations(tenant_id, approval_status);
`

const schemaUserRisks = `
CREATE TABLE IF NOT EXISTS user_risks (
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    fraud_count INTEGER NOT NULL,
    total_activities INTEGER NOT NULL,
    fraud_ratio REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, user_id)
);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    risk REAL NOT NULL DEFAULT 0,
    category TEXT,
    note TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_tenant ON screening_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaActivities,
		schemaAnalyses,
		schemaValidations,
		schemaUserRisks,
		schemaScreeningRules,
	}
}
