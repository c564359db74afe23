package rules

import "github.com/Loofy147/Lsp/internal/domain"

func limit(v float64) *float64 { return &v }

// DefaultRules is the alert set used for tenants that have not stored any
// rules of their own.
func DefaultRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:          "blocked-activity",
			Name:        "Blocked activity",
			Description: "The detector recommends blocking the activity",
			Version:     "1.0.0",
			Expression:  `recommendation == "block"`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "Not blocked"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "Blocked by fraud detector"},
			},
			Enabled: true,
		},
		{
			ID:          "stacked-signals",
			Name:        "Stacked signals",
			Description: "Several independent fraud checks fired together",
			Version:     "1.0.0",
			Expression:  `signal_count`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(3), SubRuleRef: domain.RuleOutcomePass, Reason: "Few signals"},
				{LowerLimit: limit(3), SubRuleRef: domain.RuleOutcomeReview, Reason: "Three or more fraud signals"},
			},
			Enabled: true,
		},
		{
			ID:          "shared-device-burst",
			Name:        "Shared device burst",
			Description: "Device sharing on a user with a burst of recent activity",
			Version:     "1.0.0",
			Expression:  `"device_sharing" in signal_types && recent_count > 50`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "No burst"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "Shared device with burst activity"},
			},
			Enabled: true,
		},
	}
}
