// Package fraud scores the authenticity of individual activities.
//
// A Detector runs five independent checks against the user's stored
// behaviour, aggregates the resulting signals into a bounded risk score and
// maps it to an allow/review/block recommendation.
package fraud

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/profile"
)

// ErrInvalidConfig is returned for unusable detector thresholds.
var ErrInvalidConfig = errors.New("invalid fraud config")

// Detector assesses activities against per-user behavioural state.
type Detector struct {
	store *profile.Store
	cfg   domain.FraudConfig
	agg   *Aggregator
	now   func() time.Time
}

// NewDetector creates a detector backed by store.
func NewDetector(store *profile.Store, cfg domain.FraudConfig) (*Detector, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.MinActivityDuration < 0 {
		return nil, fmt.Errorf("%w: negative min activity duration", ErrInvalidConfig)
	}
	if cfg.RegularityWindow < 1 || cfg.RegularityMinIntervals < 1 {
		return nil, fmt.Errorf("%w: regularity window must be positive", ErrInvalidConfig)
	}
	if cfg.ReviewThreshold < 0 || cfg.BlockThreshold > 1 || cfg.ReviewThreshold > cfg.BlockThreshold {
		return nil, fmt.Errorf("%w: thresholds must satisfy 0 <= review <= block <= 1", ErrInvalidConfig)
	}

	return &Detector{
		store: store,
		cfg:   cfg,
		agg:   NewAggregator(cfg.ReviewThreshold, cfg.BlockThreshold),
		now:   time.Now,
	}, nil
}

// WithClock overrides the clock used to stamp signals and assessments.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// AssessActivityAuthenticity runs every check for activity and records it
// into the user's activity profile. rc may be nil.
//
// Callers on concurrent paths must hold the user's store lock.
func (d *Detector) AssessActivityAuthenticity(userID string, activity *domain.ActivityEvent, rc *domain.RequestContext) *domain.FraudAssessment {
	if rc == nil {
		rc = &domain.RequestContext{}
	}
	now := d.now()

	var signals []domain.FraudSignal
	for _, check := range []func() *domain.FraudSignal{
		func() *domain.FraudSignal { return d.checkVelocity(userID, activity, now) },
		func() *domain.FraudSignal { return d.checkRegularity(userID, now) },
		func() *domain.FraudSignal { return d.checkBiometrics(rc, now) },
		func() *domain.FraudSignal { return d.checkTemporal(userID, activity, now) },
		func() *domain.FraudSignal { return d.checkDevice(userID, rc, now) },
	} {
		if s := check(); s != nil {
			signals = append(signals, *s)
		}
	}

	d.store.RecordActivity(userID, activity.Timestamp)

	risk := d.agg.RiskScore(signals)
	rec := d.agg.Recommend(risk)

	return &domain.FraudAssessment{
		ID:             uuid.New().String(),
		TenantID:       activity.TenantID,
		UserID:         userID,
		ActivityID:     activity.ID,
		IsSuspicious:   risk > d.cfg.ReviewThreshold,
		RiskScore:      risk,
		Signals:        signals,
		Recommendation: rec,
		Reasoning:      Reasoning(signals, risk, rec),
		Timestamp:      now.UTC(),
	}
}
