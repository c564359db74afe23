// Package stats holds the small numeric helpers shared by the analytics packages.
package stats

import (
	"math"

	"github.com/Loofy147/Lsp/internal/domain"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// CoefficientOfVariation returns stddev/mean. A zero mean yields 0.
func CoefficientOfVariation(xs []float64) float64 {
	m := Mean(xs)
	if m == 0 {
		return 0
	}
	return StdDev(xs) / m
}

// Clamp01 bounds v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Engagement returns the engagement levels of events in order.
func Engagement(events []domain.ActivityEvent) []float64 {
	out := make([]float64, len(events))
	for i := range events {
		out[i] = events[i].EngagementLevel
	}
	return out
}

// EngagementStability compares the mean engagement of the first and second
// half of a time-ordered history: 1 - |first - second|. ok is false when the
// history has fewer than two events.
func EngagementStability(sorted []domain.ActivityEvent) (float64, bool) {
	if len(sorted) < 2 {
		return 0, false
	}
	mid := len(sorted) / 2
	first := Mean(Engagement(sorted[:mid]))
	second := Mean(Engagement(sorted[mid:]))
	return Clamp01(1 - math.Abs(first-second)), true
}
