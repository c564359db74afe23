package domain

import (
	"sort"
	"time"
)

// ActivityProfile is the per-user behavioural state the fraud checks read.
type ActivityProfile struct {
	UserID           string      `json:"userId"`
	LastActivityTime time.Time   `json:"lastActivityTime"`
	Intervals        []float64   `json:"intervals"` // seconds between consecutive activities
	ActivityTimes    []time.Time `json:"activityTimes"`

	// HourDistribution maps hour of day (0-23) to the fraction of activities in it.
	HourDistribution map[int]float64 `json:"hourDistribution"`
}

// Clone returns a deep copy.
func (p *ActivityProfile) Clone() *ActivityProfile {
	out := &ActivityProfile{
		UserID:           p.UserID,
		LastActivityTime: p.LastActivityTime,
		Intervals:        append([]float64(nil), p.Intervals...),
		ActivityTimes:    append([]time.Time(nil), p.ActivityTimes...),
		HourDistribution: make(map[int]float64, len(p.HourDistribution)),
	}
	for h, f := range p.HourDistribution {
		out.HourDistribution[h] = f
	}
	return out
}

// ProgressPoint is one observation on a learning curve.
type ProgressPoint struct {
	Time   time.Time `json:"time"`
	Signal float64   `json:"signal"`
}

// LearningCurve summarises a user's progress in one domain.
type LearningCurve struct {
	Domain           ActivityDomain  `json:"domain"`
	StartDate        time.Time       `json:"startDate"`
	ProgressPoints   []ProgressPoint `json:"progressPoints"`
	LearningVelocity float64         `json:"learningVelocity"` // signal per day
	ConsistencyScore float64         `json:"consistencyScore"`
}

// InternalProfile is the full analytics view of a user.
type InternalProfile struct {
	UserID               string                            `json:"userId"`
	ActivityHistory      []ActivityEvent                   `json:"activityHistory"`
	Capabilities         CapabilityScores                  `json:"capabilities"`
	LanguageCapabilities LanguageScores                    `json:"languageCapabilities"`
	LearningCurves       map[ActivityDomain]*LearningCurve `json:"learningCurves,omitempty"`
	Patterns             map[string]*BehaviorPattern       `json:"patterns,omitempty"`
	UpdatedAt            time.Time                         `json:"updatedAt"`
}

// NewInternalProfile returns an empty profile for userID.
func NewInternalProfile(userID string) *InternalProfile {
	return &InternalProfile{
		UserID:         userID,
		LearningCurves: make(map[ActivityDomain]*LearningCurve),
		Patterns:       make(map[string]*BehaviorPattern),
	}
}

// SortedHistory returns the activity history ordered by timestamp.
// The stored history is left in arrival order.
func (p *InternalProfile) SortedHistory() []ActivityEvent {
	out := append([]ActivityEvent(nil), p.ActivityHistory...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Clone returns a deep copy suitable for offline batch processing.
func (p *InternalProfile) Clone() *InternalProfile {
	out := &InternalProfile{
		UserID:               p.UserID,
		ActivityHistory:      append([]ActivityEvent(nil), p.ActivityHistory...),
		Capabilities:         p.Capabilities.Clone(),
		LanguageCapabilities: p.LanguageCapabilities.Clone(),
		LearningCurves:       make(map[ActivityDomain]*LearningCurve, len(p.LearningCurves)),
		Patterns:             make(map[string]*BehaviorPattern, len(p.Patterns)),
		UpdatedAt:            p.UpdatedAt,
	}
	for d, c := range p.LearningCurves {
		cc := *c
		cc.ProgressPoints = append([]ProgressPoint(nil), c.ProgressPoints...)
		out.LearningCurves[d] = &cc
	}
	for id, bp := range p.Patterns {
		out.Patterns[id] = bp
	}
	return out
}
