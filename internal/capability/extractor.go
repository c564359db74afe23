package capability

import (
	"sort"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// SignalExtractor reduces raw performance metrics to a single signal in [0, 1].
// ok is false when the metrics carry no usable signal.
type SignalExtractor interface {
	Extract(metrics map[string]float64) (signal float64, ok bool)
}

// MeanExtractor averages every metric.
type MeanExtractor struct{}

// Extract returns the clamped mean of all metrics, or false when there are none.
func (MeanExtractor) Extract(metrics map[string]float64) (float64, bool) {
	if len(metrics) == 0 {
		return 0, false
	}

	// Summed in sorted key order.
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]float64, len(keys))
	for i, k := range keys {
		values[i] = metrics[k]
	}
	return stats.Clamp01(stats.Mean(values)), true
}

// MetricExtractor uses a single named metric and ignores the rest.
type MetricExtractor struct {
	Metric string
}

// Extract returns the named metric clamped to [0, 1], or false when it is absent.
func (e MetricExtractor) Extract(metrics map[string]float64) (float64, bool) {
	v, ok := metrics[e.Metric]
	if !ok {
		return 0, false
	}
	return stats.Clamp01(v), true
}

// MetricAccuracy is the metric language activities are judged on.
const MetricAccuracy = "accuracy"

// AccuracyExtractor returns the extractor used for language learning.
func AccuracyExtractor() SignalExtractor {
	return MetricExtractor{Metric: MetricAccuracy}
}

// Extractors selects a SignalExtractor per activity domain.
type Extractors struct {
	byDomain map[domain.ActivityDomain]SignalExtractor
	fallback SignalExtractor
}

// NewExtractors creates a selector that falls back to fallback for unlisted domains.
func NewExtractors(fallback SignalExtractor) *Extractors {
	return &Extractors{
		byDomain: make(map[domain.ActivityDomain]SignalExtractor),
		fallback: fallback,
	}
}

// DefaultExtractors averages metrics everywhere except language learning,
// which uses accuracy.
func DefaultExtractors() *Extractors {
	return NewExtractors(MeanExtractor{}).
		With(domain.DomainLanguageLearning, AccuracyExtractor())
}

// With registers e for d and returns the selector.
func (x *Extractors) With(d domain.ActivityDomain, e SignalExtractor) *Extractors {
	x.byDomain[d] = e
	return x
}

// For returns the extractor for d.
func (x *Extractors) For(d domain.ActivityDomain) SignalExtractor {
	if e, ok := x.byDomain[d]; ok {
		return e
	}
	return x.fallback
}
