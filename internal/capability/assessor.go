package capability

import (
	"github.com/Loofy147/Lsp/internal/domain"
)

// Dimension is a capability enum usable as an array index.
type Dimension interface {
	~int
	String() string
}

// Activity is what the assessor needs to know about the thing being assessed.
type Activity interface {
	ActivityDomain() domain.ActivityDomain
	DifficultyLevel() float64
}

// EstimateStore holds one optional estimate per dimension.
// *domain.CapabilityScores and *domain.LanguageScores implement it.
type EstimateStore[D Dimension] interface {
	Estimate(d D) (domain.CapabilityEstimate, bool)
	SetEstimate(d D, e domain.CapabilityEstimate)
}

// Assessor updates estimates from activity performance.
type Assessor[D Dimension] struct {
	extractors *Extractors
}

// NewAssessor creates an assessor. A nil selector uses DefaultExtractors.
func NewAssessor[D Dimension](extractors *Extractors) *Assessor[D] {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	return &Assessor[D]{extractors: extractors}
}

// AssessFromActivity updates every listed dimension in store with the signal
// extracted from metrics and returns the resulting means. Dimensions are
// seeded with the weak prior on first touch. Without a usable signal the
// estimates are left as they are.
func (a *Assessor[D]) AssessFromActivity(store EstimateStore[D], activity Activity, metrics map[string]float64, dims []D) map[D]float64 {
	signal, ok := a.extractors.For(activity.ActivityDomain()).Extract(metrics)
	difficulty := activity.DifficultyLevel()

	out := make(map[D]float64, len(dims))
	for _, d := range dims {
		est, tracked := store.Estimate(d)
		if !tracked {
			est = Prior()
		}
		if ok {
			est = Update(est, signal, difficulty)
		}
		store.SetEstimate(d, est)
		out[d] = est.Mean
	}
	return out
}

// defaultRouting maps a domain to the dimensions its activities exercise
// when an event names none.
var defaultRouting = map[domain.ActivityDomain][]domain.CapabilityDimension{
	domain.DomainLanguageLearning:   {domain.Communication, domain.LearningSpeed},
	domain.DomainCreativeWork:       {domain.Creativity, domain.Adaptability},
	domain.DomainFreelanceProjects:  {domain.DomainDepth, domain.Reliability},
	domain.DomainSkillGames:         {domain.PatternRecognition, domain.AnalyticalThinking},
	domain.DomainKnowledgeSharing:   {domain.KnowledgeBreadth, domain.Communication},
	domain.DomainProblemSolving:     {domain.AnalyticalThinking, domain.Persistence},
	domain.DomainSocialContribution: {domain.Collaboration, domain.EmotionalIntelligence},
	domain.DomainProfessionalWork:   {domain.Reliability, domain.DomainDepth},
}

// TargetDimensions returns the dimensions an event updates.
func TargetDimensions(ev *domain.ActivityEvent) []domain.CapabilityDimension {
	if len(ev.TargetDimensions) > 0 {
		return ev.TargetDimensions
	}
	return defaultRouting[ev.Domain]
}
