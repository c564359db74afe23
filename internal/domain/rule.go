package domain

// AlertRule is a tenant-defined CEL expression evaluated over each fraud
// assessment. Rules route activities to alerting; they never change the
// risk score.
type AlertRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []RuleBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an outcome.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	SubRuleRef string   `json:"subRuleRef"` // e.g., ".pass", ".fail", ".review"
	Reason     string   `json:"reason"`
}

// RuleResult is the output of an alert rule evaluation.
type RuleResult struct {
	RuleID     string  `json:"ruleId"`
	TenantID   string  `json:"tenantId"`
	ActivityID string  `json:"activityId"`
	SubRuleRef string  `json:"subRuleRef"` // ".pass", ".fail", ".review", ".err"
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
	ProcessMs  int64   `json:"processMs"`
}

// Triggered reports whether the result should raise an alert.
func (r RuleResult) Triggered() bool {
	return r.SubRuleRef == RuleOutcomeFail || r.SubRuleRef == RuleOutcomeReview
}

// Predefined rule outcomes
const (
	RuleOutcomePass   = ".pass"
	RuleOutcomeFail   = ".fail"
	RuleOutcomeReview = ".review"
	RuleOutcomeError  = ".err"
)

// RuleInput is the set of variables exposed to alert rule expressions.
type RuleInput struct {
	TenantID       string
	UserID         string
	ActivityID     string
	Domain         string
	ActivityType   string
	Engagement     float64
	RiskScore      float64
	Recommendation string
	SignalTypes    []string
	RecentCount    int64
}
