package fraud

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Loofy147/Lsp/internal/domain"
)

// rankWeights apply to signals ordered by descending severity.
// Signals beyond the fifth are ignored.
var rankWeights = []float64{1.0, 0.7, 0.5, 0.3, 0.2}

// Aggregator turns a set of signals into a risk score and a recommendation.
type Aggregator struct {
	// ReviewThreshold is the score above which an activity is reviewed.
	ReviewThreshold float64

	// BlockThreshold is the score above which an activity is blocked.
	BlockThreshold float64
}

// NewAggregator creates an aggregator with the given bands.
func NewAggregator(review, block float64) *Aggregator {
	return &Aggregator{ReviewThreshold: review, BlockThreshold: block}
}

// RiskScore computes the rank-weighted mean severity, capped at 1.
func (a *Aggregator) RiskScore(signals []domain.FraudSignal) float64 {
	if len(signals) == 0 {
		return 0
	}

	severities := make([]float64, len(signals))
	for i, s := range signals {
		severities[i] = s.Severity
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(severities)))

	var score, weight float64
	for i, sev := range severities {
		if i >= len(rankWeights) {
			break
		}
		score += sev * rankWeights[i]
		weight += rankWeights[i]
	}
	if weight == 0 {
		return 0
	}
	return min(score/weight, 1.0)
}

// Recommend maps a risk score to an action.
func (a *Aggregator) Recommend(risk float64) domain.Recommendation {
	switch {
	case risk > a.BlockThreshold:
		return domain.RecommendBlock
	case risk > a.ReviewThreshold:
		return domain.RecommendReview
	default:
		return domain.RecommendAllow
	}
}

// Reasoning builds a human-readable summary of an assessment.
func Reasoning(signals []domain.FraudSignal, risk float64, rec domain.Recommendation) string {
	if len(signals) == 0 {
		return "No fraud indicators detected"
	}

	parts := make([]string, len(signals))
	for i, s := range signals {
		parts[i] = fmt.Sprintf("%s (%.2f): %s", s.Type, s.Severity, s.Description)
	}
	return fmt.Sprintf("Risk %.2f, recommendation %s. Signals: %s", risk, rec, strings.Join(parts, "; "))
}
