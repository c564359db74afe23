package domain

import (
	"time"
)

// ConcernExcessiveTime flags sustained daily overuse.
const ConcernExcessiveTime = "excessive_time"

// WellbeingConcern is one detected risk to a user's wellbeing.
type WellbeingConcern struct {
	Type            string         `json:"type"`
	Severity        float64        `json:"severity"`
	Description     string         `json:"description"`
	Evidence        map[string]any `json:"evidence,omitempty"`
	Recommendations []string       `json:"recommendations"`
	DetectedAt      time.Time      `json:"detectedAt"`
}

// WellbeingAssessment summarises a user's recent engagement health.
type WellbeingAssessment struct {
	UserID                  string             `json:"userId"`
	TenantID                string             `json:"tenantId,omitempty"`
	OverallScore            float64            `json:"overallScore"`
	Concerns                []WellbeingConcern `json:"concerns"`
	PositiveIndicators      []string           `json:"positiveIndicators"`
	InterventionRecommended bool               `json:"interventionRecommended"`
	WindowDays              int                `json:"windowDays"`
	AsOf                    time.Time          `json:"asOf"`
}
