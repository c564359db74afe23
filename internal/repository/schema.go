package repository

// Schema definitions for the LSP analytics store.
// Compatible with both SQLite and PostgreSQL.

const schemaActivities = `
CREATE TABLE IF NOT EXISTS activity_events (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    engagement REAL NOT NULL,
    session_id TEXT NOT NULL,
    sequence_position INTEGER NOT NULL,
    difficulty REAL,
    performance_metrics TEXT,
    target_dimensions TEXT,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_activity_events_user ON activity_events(tenant_id, user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_activity_events_session ON activity_events(tenant_id, user_id, session_id);
`

const schemaCapabilities = `
CREATE TABLE IF NOT EXISTS capability_scores (
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    dimension TEXT NOT NULL,
    mean REAL NOT NULL,
    variance REAL NOT NULL,
    confidence REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, user_id, dimension)
);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS fraud_assessments (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    activity_id TEXT NOT NULL,
    is_suspicious INTEGER NOT NULL,
    risk_score REAL NOT NULL,
    recommendation TEXT NOT NULL,
    reasoning TEXT NOT NULL,
    signals TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_assessments_user ON fraud_assessments(tenant_id, user_id);
CREATE INDEX IF NOT EXISTS idx_fraud_assessments_recommendation ON fraud_assessments(tenant_id, recommendation);
`

const schemaPatterns = `
CREATE TABLE IF NOT EXISTS behavior_patterns (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    status TEXT NOT NULL,
    strength REAL NOT NULL,
    consistency REAL NOT NULL,
    member_count INTEGER NOT NULL,
    body TEXT NOT NULL,
    discovered_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_behavior_patterns_status ON behavior_patterns(tenant_id, status);
`

const schemaWellbeing = `
CREATE TABLE IF NOT EXISTS wellbeing_assessments (
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    as_of TIMESTAMP NOT NULL,
    overall_score REAL NOT NULL,
    intervention INTEGER NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (tenant_id, user_id, as_of)
);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_tenant ON alert_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaActivities,
		schemaCapabilities,
		schemaAssessments,
		schemaPatterns,
		schemaWellbeing,
		schemaAlertRules,
	}
}
