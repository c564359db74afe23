package domain

import (
	"time"
)

// ActivityDomain identifies the platform area an activity belongs to.
type ActivityDomain string

const (
	DomainLanguageLearning   ActivityDomain = "language_learning"
	DomainCreativeWork       ActivityDomain = "creative_work"
	DomainFreelanceProjects  ActivityDomain = "freelance_projects"
	DomainSkillGames         ActivityDomain = "skill_games"
	DomainKnowledgeSharing   ActivityDomain = "knowledge_sharing"
	DomainProblemSolving     ActivityDomain = "problem_solving"
	DomainSocialContribution ActivityDomain = "social_contribution"
	DomainProfessionalWork   ActivityDomain = "professional_work"
)

// ActivityDomains lists every known domain in declaration order.
var ActivityDomains = []ActivityDomain{
	DomainLanguageLearning,
	DomainCreativeWork,
	DomainFreelanceProjects,
	DomainSkillGames,
	DomainKnowledgeSharing,
	DomainProblemSolving,
	DomainSocialContribution,
	DomainProfessionalWork,
}

// Valid reports whether d is one of the known domains.
func (d ActivityDomain) Valid() bool {
	for _, known := range ActivityDomains {
		if d == known {
			return true
		}
	}
	return false
}

// DefaultDifficulty is used when an activity carries no difficulty level.
const DefaultDifficulty = 0.5

// ActivityEvent is a single immutable telemetry record for a user.
type ActivityEvent struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`

	Timestamp    time.Time      `json:"timestamp"`
	Domain       ActivityDomain `json:"domain"`
	ActivityType string         `json:"activityType"`

	// PerformanceMetrics holds raw metric name -> value pairs.
	PerformanceMetrics map[string]float64 `json:"performanceMetrics,omitempty"`

	// EngagementLevel is in [0, 1].
	EngagementLevel float64 `json:"engagementLevel"`

	SessionID        string `json:"sessionId"`
	SequencePosition int    `json:"sequencePosition"`

	// Difficulty is optional; nil means DefaultDifficulty.
	Difficulty *float64 `json:"difficulty,omitempty"`

	// TargetDimensions lists the capability dimensions this activity exercises.
	// Empty means the per-domain default routing applies.
	TargetDimensions []CapabilityDimension `json:"targetDimensions,omitempty"`
}

// ActivityDomain returns the event domain.
func (e *ActivityEvent) ActivityDomain() ActivityDomain {
	return e.Domain
}

// DifficultyLevel returns the difficulty clamped to [0, 1].
func (e *ActivityEvent) DifficultyLevel() float64 {
	if e.Difficulty == nil {
		return DefaultDifficulty
	}
	return clamp01(*e.Difficulty)
}

// Point is a 2D pointer sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TypingPattern carries keystroke timing.
type TypingPattern struct {
	KeyIntervals []float64 `json:"key_intervals"`
}

// RequestContext is the optional client context sent alongside an activity.
type RequestContext struct {
	UserAgent        string         `json:"user_agent,omitempty"`
	ScreenResolution string         `json:"screen_resolution,omitempty"`
	Timezone         string         `json:"timezone,omitempty"`
	MouseMovements   []Point        `json:"mouse_movements,omitempty"`
	TypingPattern    *TypingPattern `json:"typing_pattern,omitempty"`
}

// ActivityRequest is the API payload for submitting an activity.
type ActivityRequest struct {
	ID                 string                `json:"id"`
	UserID             string                `json:"userId" validate:"required"`
	Timestamp          *time.Time            `json:"timestamp,omitempty"`
	Domain             ActivityDomain        `json:"domain" validate:"required"`
	ActivityType       string                `json:"activityType" validate:"required"`
	PerformanceMetrics map[string]float64    `json:"performanceMetrics,omitempty"`
	EngagementLevel    float64               `json:"engagementLevel" validate:"gte=0,lte=1"`
	SessionID          string                `json:"sessionId" validate:"required"`
	SequencePosition   int                   `json:"sequencePosition" validate:"gte=0"`
	Difficulty         *float64              `json:"difficulty,omitempty" validate:"omitempty,gte=0,lte=1"`
	TargetDimensions   []CapabilityDimension `json:"targetDimensions,omitempty"`
	Context            *RequestContext       `json:"context,omitempty"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
