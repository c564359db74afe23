package capability

import (
	"github.com/Loofy147/Lsp/internal/domain"
)

// Question is one item of a structured assessment.
type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt,omitempty"`
}

// StructuredActivity is a graded assessment targeting language dimensions.
type StructuredActivity struct {
	ID                 string                     `json:"id"`
	ActivityType       string                     `json:"activityType" validate:"required"`
	Difficulty         *float64                   `json:"difficulty,omitempty" validate:"omitempty,gte=0,lte=1"`
	TargetLanguage     string                     `json:"targetLanguage,omitempty"`
	Questions          []Question                 `json:"questions,omitempty"`
	DimensionsAssessed []domain.LanguageDimension `json:"dimensionsAssessed" validate:"required,min=1"`
}

// ActivityDomain is always language learning.
func (a *StructuredActivity) ActivityDomain() domain.ActivityDomain {
	return domain.DomainLanguageLearning
}

// DifficultyLevel returns the declared difficulty or the default.
func (a *StructuredActivity) DifficultyLevel() float64 {
	if a.Difficulty == nil {
		return domain.DefaultDifficulty
	}
	return *a.Difficulty
}

// GradedResponse is the user's answer to one question.
type GradedResponse struct {
	QuestionID string  `json:"questionId,omitempty"`
	Correct    bool    `json:"correct"`
	TimeTaken  float64 `json:"timeTaken" validate:"gte=0"` // seconds
}

// Metric names produced from graded responses.
const (
	MetricSpeed = "speed"
)

// Performance derives accuracy and speed (responses per minute) from responses.
// No responses produce no metrics.
func Performance(responses []GradedResponse) map[string]float64 {
	if len(responses) == 0 {
		return map[string]float64{}
	}

	correct := 0
	total := 0.0
	for _, r := range responses {
		if r.Correct {
			correct++
		}
		total += r.TimeTaken
	}

	speed := 0.0
	if total > 0 {
		speed = float64(len(responses)) / (total / 60)
	}

	return map[string]float64{
		MetricAccuracy: float64(correct) / float64(len(responses)),
		MetricSpeed:    speed,
	}
}

// StructuredAssessor scores structured language assessments.
type StructuredAssessor struct {
	inner *Assessor[domain.LanguageDimension]
}

// NewStructuredAssessor creates an assessor that judges on accuracy.
func NewStructuredAssessor() *StructuredAssessor {
	return &StructuredAssessor{
		inner: NewAssessor[domain.LanguageDimension](NewExtractors(AccuracyExtractor())),
	}
}

// Assess updates the dimensions the activity declares from the graded responses.
func (s *StructuredAssessor) Assess(store EstimateStore[domain.LanguageDimension], activity *StructuredActivity, responses []GradedResponse) map[domain.LanguageDimension]float64 {
	return s.inner.AssessFromActivity(store, activity, Performance(responses), activity.DimensionsAssessed)
}
