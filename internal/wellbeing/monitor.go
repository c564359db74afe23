// Package wellbeing detects unhealthy engagement from a user's recent history.
package wellbeing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// ErrInvalidConfig is returned for unusable thresholds.
var ErrInvalidConfig = errors.New("invalid wellbeing config")

// interventionSeverity is the concern severity above which an intervention is recommended.
const interventionSeverity = 0.7

// Monitor assesses engagement health.
type Monitor struct {
	maxDailyHours float64
	windowDays    int
}

// NewMonitor creates a monitor.
func NewMonitor(cfg domain.WellbeingConfig) (*Monitor, error) {
	if cfg.MaxDailyHours <= 0 {
		return nil, fmt.Errorf("%w: max daily hours must be positive", ErrInvalidConfig)
	}
	if cfg.WindowDays < 1 {
		return nil, fmt.Errorf("%w: window must be at least one day", ErrInvalidConfig)
	}
	return &Monitor{maxDailyHours: cfg.MaxDailyHours, windowDays: cfg.WindowDays}, nil
}

// WindowDays returns the default window.
func (m *Monitor) WindowDays() int { return m.windowDays }

// AssessWellbeing evaluates the recentDays before the user's latest activity.
// A non-positive recentDays uses the configured window. The result depends
// only on the history and the window.
func (m *Monitor) AssessWellbeing(user *domain.InternalProfile, recentDays int) *domain.WellbeingAssessment {
	if recentDays <= 0 {
		recentDays = m.windowDays
	}

	history := user.SortedHistory()
	var asOf time.Time
	if len(history) > 0 {
		asOf = history[len(history)-1].Timestamp
	}

	cutoff := asOf.AddDate(0, 0, -recentDays)
	var recent []domain.ActivityEvent
	for _, ev := range history {
		if ev.Timestamp.After(cutoff) {
			recent = append(recent, ev)
		}
	}

	daily := m.dailyHours(recent)

	concerns := []domain.WellbeingConcern{}
	if c := m.excessiveTime(daily, asOf); c != nil {
		concerns = append(concerns, *c)
	}

	total := 0.0
	intervene := false
	for _, c := range concerns {
		total += c.Severity
		if c.Severity > interventionSeverity {
			intervene = true
		}
	}

	return &domain.WellbeingAssessment{
		UserID:                  user.UserID,
		OverallScore:            max(0, 1-total),
		Concerns:                concerns,
		PositiveIndicators:      m.positiveIndicators(daily, len(concerns)),
		InterventionRecommended: intervene,
		WindowDays:              recentDays,
		AsOf:                    asOf.UTC(),
	}
}

// dailyHours sums the gaps between consecutive sorted events onto the UTC
// date of the later event. Gaps at or above the daily threshold are breaks
// and are not counted.
func (m *Monitor) dailyHours(sorted []domain.ActivityEvent) map[string]float64 {
	out := make(map[string]float64)
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Hours()
		if gap < m.maxDailyHours {
			out[sorted[i].Timestamp.UTC().Format(time.DateOnly)] += gap
		}
	}
	return out
}

func (m *Monitor) excessiveTime(daily map[string]float64, at time.Time) *domain.WellbeingConcern {
	var days []string
	var hours []float64
	for day, h := range sortedDays(daily) {
		if h > m.maxDailyHours {
			days = append(days, day)
			hours = append(hours, h)
		}
	}
	if len(hours) == 0 {
		return nil
	}

	avg := stats.Mean(hours)
	return &domain.WellbeingConcern{
		Type:            domain.ConcernExcessiveTime,
		Severity:        min((avg-m.maxDailyHours)/m.maxDailyHours, 1.0),
		Description:     fmt.Sprintf("Spending %.1f hours/day", avg),
		Evidence:        map[string]any{"excessive_days": days, "avg_hours": avg},
		Recommendations: []string{"Set daily time limits"},
		DetectedAt:      at.UTC(),
	}
}

func (m *Monitor) positiveIndicators(daily map[string]float64, concerns int) []string {
	out := []string{}
	healthy := 0
	for _, h := range daily {
		if h > 0 && h <= m.maxDailyHours {
			healthy++
		}
	}
	if healthy > 0 {
		out = append(out, fmt.Sprintf("Active within healthy limits on %d day(s)", healthy))
	}
	if concerns == 0 && len(daily) > 0 {
		out = append(out, "Balanced engagement")
	}
	return out
}

// sortedDays yields the map in date order.
func sortedDays(daily map[string]float64) func(yield func(string, float64) bool) {
	return func(yield func(string, float64) bool) {
		keys := make([]string, 0, len(daily))
		for k := range daily {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !yield(k, daily[k]) {
				return
			}
		}
	}
}
