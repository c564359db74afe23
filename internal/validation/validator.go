// Package validation decides whether a discovered pattern is statistically meaningful.
package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// ErrInvalidConfig is returned for unusable validator settings.
var ErrInvalidConfig = errors.New("invalid validation config")

const insufficientSample = "Insufficient sample size"

// Validator runs the pattern acceptance tests.
type Validator struct {
	cfg       domain.ValidationConfig
	reference domain.CapabilityDimension
}

// NewValidator checks cfg and returns a validator.
func NewValidator(cfg domain.ValidationConfig) (*Validator, error) {
	if cfg.MinSampleSize < 0 {
		return nil, fmt.Errorf("%w: min sample size must be >= 0, got %d", ErrInvalidConfig, cfg.MinSampleSize)
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel > 1 {
		return nil, fmt.Errorf("%w: confidence level must be in (0, 1], got %v", ErrInvalidConfig, cfg.ConfidenceLevel)
	}
	if cfg.PredictiveWindowSize < 1 || cfg.PredictiveMinEvents < cfg.PredictiveWindowSize {
		return nil, fmt.Errorf("%w: predictive window %d needs at least as many events, got %d",
			ErrInvalidConfig, cfg.PredictiveWindowSize, cfg.PredictiveMinEvents)
	}

	ref := domain.Creativity
	if cfg.ReferenceDimension != "" {
		d, err := domain.ParseCapabilityDimension(cfg.ReferenceDimension)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		ref = d
	}

	return &Validator{cfg: cfg, reference: ref}, nil
}

// ValidatePattern tests pattern against the users that formed it and the
// whole population.
func (v *Validator) ValidatePattern(pattern *domain.BehaviorPattern, clusterUsers, allUsers []*domain.InternalProfile) *domain.PatternValidationResult {
	if len(clusterUsers) < v.cfg.MinSampleSize {
		return &domain.PatternValidationResult{
			PatternID:       pattern.ID,
			IsValid:         false,
			SampleSize:      len(clusterUsers),
			ConfidenceLevel: v.cfg.ConfidenceLevel,
			Interpretable:   false,
			Description:     insufficientSample,
		}
	}

	stability := v.TemporalStability(clusterUsers)
	distinct := v.Distinctiveness(clusterUsers, allUsers)
	predictive := v.PredictiveValidity(clusterUsers)
	interpretable, description := Interpretability(pattern)

	return &domain.PatternValidationResult{
		PatternID:          pattern.ID,
		IsValid:            stability > v.cfg.StabilityMin && distinct > v.cfg.DistinctivenessMin && predictive > v.cfg.PredictiveMin && interpretable,
		TemporalStability:  stability,
		Distinctiveness:    distinct,
		PredictiveValidity: predictive,
		SampleSize:         len(clusterUsers),
		ConfidenceLevel:    v.cfg.ConfidenceLevel,
		Interpretable:      interpretable,
		Description:        description,
	}
}

// TemporalStability averages, over users with at least two events, one minus
// the engagement difference between the two halves of their history.
func (v *Validator) TemporalStability(users []*domain.InternalProfile) float64 {
	var scores []float64
	for _, u := range users {
		if s, ok := stats.EngagementStability(u.SortedHistory()); ok {
			scores = append(scores, s)
		}
	}
	return stats.Mean(scores)
}

// Distinctiveness is the absolute gap between the cluster and population
// means of the reference dimension. Untracked users count as 0.
func (v *Validator) Distinctiveness(cluster, all []*domain.InternalProfile) float64 {
	if len(cluster) == 0 || len(all) == 0 {
		return 0
	}
	return math.Abs(v.referenceMean(cluster) - v.referenceMean(all))
}

func (v *Validator) referenceMean(users []*domain.InternalProfile) float64 {
	vals := make([]float64, len(users))
	for i, u := range users {
		vals[i] = u.Capabilities.Mean(v.reference)
	}
	return stats.Mean(vals)
}

// PredictiveValidity is the share of users with enough history whose latest
// engagement window is at least as high as their earliest one.
func (v *Validator) PredictiveValidity(users []*domain.InternalProfile) float64 {
	w := v.cfg.PredictiveWindowSize
	var trends []float64
	for _, u := range users {
		h := u.SortedHistory()
		if len(h) < v.cfg.PredictiveMinEvents {
			continue
		}
		recent := stats.Mean(stats.Engagement(h[len(h)-w:]))
		past := stats.Mean(stats.Engagement(h[:w]))
		if recent >= past {
			trends = append(trends, 1)
		} else {
			trends = append(trends, 0)
		}
	}
	return stats.Mean(trends)
}

// Interpretability returns the pattern's description, falling back to one
// derived from its name.
func Interpretability(p *domain.BehaviorPattern) (bool, string) {
	desc := p.Description
	if desc == "" && p.Name != "" {
		desc = fmt.Sprintf("A pattern related to %s", p.Name)
	}
	return desc != "", desc
}

// Finalize stamps pattern with the validation outcome.
func Finalize(pattern *domain.BehaviorPattern, result *domain.PatternValidationResult) *domain.BehaviorPattern {
	out := *pattern
	out.Validation = result
	if result.IsValid {
		out.Status = domain.PatternAccepted
	} else {
		out.Status = domain.PatternRejected
	}
	return &out
}
