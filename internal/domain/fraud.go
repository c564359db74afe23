package domain

import (
	"time"
)

// SignalType names a fraud check outcome.
type SignalType string

const (
	SignalVelocityViolation SignalType = "velocity_violation"
	SignalPatternTooRegular SignalType = "pattern_too_regular"
	SignalBiometricAnomaly  SignalType = "biometric_anomaly"
	SignalTemporalAnomaly   SignalType = "temporal_anomaly"
	SignalDeviceSharing     SignalType = "device_sharing"
	SignalNewDevice         SignalType = "new_device"
)

// Recommendation is the action suggested for an assessed activity.
type Recommendation string

const (
	RecommendAllow  Recommendation = "allow"
	RecommendReview Recommendation = "review"
	RecommendBlock  Recommendation = "block"
)

// FraudSignal is a single piece of evidence raised by a check.
type FraudSignal struct {
	Type        SignalType     `json:"type"`
	Severity    float64        `json:"severity"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// FraudAssessment is the aggregated authenticity verdict for an activity.
type FraudAssessment struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId,omitempty"`
	UserID         string         `json:"userId"`
	ActivityID     string         `json:"activityId"`
	IsSuspicious   bool           `json:"isSuspicious"`
	RiskScore      float64        `json:"riskScore"`
	Signals        []FraudSignal  `json:"signals"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	Timestamp      time.Time      `json:"timestamp"`
}

// SignalTypes returns the type of each signal in order.
func (a *FraudAssessment) SignalTypes() []string {
	out := make([]string, len(a.Signals))
	for i, s := range a.Signals {
		out[i] = string(s.Type)
	}
	return out
}
