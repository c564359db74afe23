// Package capability maintains per-user capability beliefs.
//
// Each dimension holds a CapabilityEstimate that is moved towards observed
// performance by a confidence-weighted update. Harder activities carry more
// weight and every update raises confidence, up to MaxConfidence.
package capability

import (
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// Prior and update constants.
const (
	PriorMean       = 0.3
	PriorVariance   = 0.2
	PriorConfidence = 0.1

	MaxConfidence = 0.95

	baseSignalConfidence       = 0.3
	difficultySignalConfidence = 0.4
	confidenceGainRate         = 0.1
)

// Prior returns the weak prior a dimension starts from.
func Prior() domain.CapabilityEstimate {
	return domain.CapabilityEstimate{
		Mean:       PriorMean,
		Variance:   PriorVariance,
		Confidence: PriorConfidence,
	}
}

// SignalConfidence maps an activity difficulty in [0, 1] to the weight of its signal.
func SignalConfidence(difficulty float64) float64 {
	return baseSignalConfidence + difficultySignalConfidence*stats.Clamp01(difficulty)
}

// Update folds one performance signal into prior.
func Update(prior domain.CapabilityEstimate, signal, difficulty float64) domain.CapabilityEstimate {
	sc := SignalConfidence(difficulty)
	total := prior.Confidence + sc
	if total == 0 {
		return prior
	}

	return domain.CapabilityEstimate{
		Mean:       stats.Clamp01((prior.Mean*prior.Confidence + signal*sc) / total),
		Variance:   prior.Variance * (1 - sc*confidenceGainRate),
		Confidence: min(prior.Confidence+sc*confidenceGainRate, MaxConfidence),
	}
}
