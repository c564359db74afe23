package domain

import (
	"time"
)

// PatternStatus tracks a pattern through validation.
type PatternStatus string

const (
	PatternCandidate PatternStatus = "candidate"
	PatternAccepted  PatternStatus = "accepted"
	PatternRejected  PatternStatus = "rejected"
)

// BehaviorPattern is a population-level cluster of similar users.
type BehaviorPattern struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CapabilityProfile holds the cluster-average score of the characteristic dimensions.
	CapabilityProfile map[CapabilityDimension]float64 `json:"capabilityProfile"`

	// CharacteristicBehaviors are short labels such as "high_creativity".
	CharacteristicBehaviors []string `json:"characteristicBehaviors,omitempty"`

	// TemporalSignature holds cluster averages of the activity features.
	TemporalSignature map[string]float64 `json:"temporalSignature,omitempty"`

	Strength           float64          `json:"strength"`    // cohesion, 0-1
	Consistency        float64          `json:"consistency"` // temporal stability, 0-1
	TriggeringContexts []ActivityDomain `json:"triggeringContexts,omitempty"`

	MemberCount  int                      `json:"memberCount"`
	Status       PatternStatus            `json:"status"`
	Validation   *PatternValidationResult `json:"validation,omitempty"`
	DiscoveredAt time.Time                `json:"discoveredAt"`
}

// PatternValidationResult is the outcome of statistically validating a pattern.
type PatternValidationResult struct {
	PatternID          string  `json:"patternId"`
	IsValid            bool    `json:"isValid"`
	TemporalStability  float64 `json:"temporalStability"`
	Distinctiveness    float64 `json:"distinctiveness"`
	PredictiveValidity float64 `json:"predictiveValidity"`
	SampleSize         int     `json:"sampleSize"`
	ConfidenceLevel    float64 `json:"confidenceLevel"`
	Interpretable      bool    `json:"interpretable"`
	Description        string  `json:"description"`
}
