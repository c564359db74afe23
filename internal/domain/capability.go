package domain

import (
	"encoding/json"
	"fmt"
)

// CapabilityDimension is a latent skill or trait tracked per user.
type CapabilityDimension int

const (
	KnowledgeBreadth CapabilityDimension = iota
	DomainDepth
	LearningSpeed
	Creativity
	AnalyticalThinking
	Communication
	Collaboration
	Persistence
	Adaptability
	Reliability
	EmotionalIntelligence
	PatternRecognition
	RiskTolerance

	NumCapabilityDimensions = int(RiskTolerance) + 1
)

var capabilityNames = [NumCapabilityDimensions]string{
	"knowledge_breadth",
	"domain_depth",
	"learning_speed",
	"creativity",
	"analytical_thinking",
	"communication",
	"collaboration",
	"persistence",
	"adaptability",
	"reliability",
	"emotional_intelligence",
	"pattern_recognition",
	"risk_tolerance",
}

func (d CapabilityDimension) String() string {
	if d < 0 || int(d) >= NumCapabilityDimensions {
		return fmt.Sprintf("capability(%d)", int(d))
	}
	return capabilityNames[d]
}

// Valid reports whether d is a declared dimension.
func (d CapabilityDimension) Valid() bool {
	return d >= 0 && int(d) < NumCapabilityDimensions
}

// ParseCapabilityDimension resolves a dimension from its name.
func ParseCapabilityDimension(name string) (CapabilityDimension, error) {
	for i, n := range capabilityNames {
		if n == name {
			return CapabilityDimension(i), nil
		}
	}
	return 0, fmt.Errorf("unknown capability dimension %q", name)
}

func (d CapabilityDimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid capability dimension %d", int(d))
	}
	return []byte(capabilityNames[d]), nil
}

func (d *CapabilityDimension) UnmarshalText(b []byte) error {
	parsed, err := ParseCapabilityDimension(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AllCapabilityDimensions returns every dimension in enum order.
func AllCapabilityDimensions() []CapabilityDimension {
	out := make([]CapabilityDimension, NumCapabilityDimensions)
	for i := range out {
		out[i] = CapabilityDimension(i)
	}
	return out
}

// LanguageDimension is a skill tracked by structured language assessments.
type LanguageDimension int

const (
	Vocabulary LanguageDimension = iota
	Grammar
	Listening
	Speaking
	Reading
	Writing
	Pronunciation
	CulturalKnowledge

	NumLanguageDimensions = int(CulturalKnowledge) + 1
)

var languageNames = [NumLanguageDimensions]string{
	"vocabulary",
	"grammar",
	"listening",
	"speaking",
	"reading",
	"writing",
	"pronunciation",
	"cultural_knowledge",
}

func (d LanguageDimension) String() string {
	if d < 0 || int(d) >= NumLanguageDimensions {
		return fmt.Sprintf("language(%d)", int(d))
	}
	return languageNames[d]
}

// Valid reports whether d is a declared dimension.
func (d LanguageDimension) Valid() bool {
	return d >= 0 && int(d) < NumLanguageDimensions
}

// ParseLanguageDimension resolves a dimension from its name.
func ParseLanguageDimension(name string) (LanguageDimension, error) {
	for i, n := range languageNames {
		if n == name {
			return LanguageDimension(i), nil
		}
	}
	return 0, fmt.Errorf("unknown language dimension %q", name)
}

func (d LanguageDimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid language dimension %d", int(d))
	}
	return []byte(languageNames[d]), nil
}

func (d *LanguageDimension) UnmarshalText(b []byte) error {
	parsed, err := ParseLanguageDimension(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CapabilityEstimate is a Bayesian-style belief about one dimension.
type CapabilityEstimate struct {
	Mean       float64 `json:"mean"`
	Variance   float64 `json:"variance"`
	Confidence float64 `json:"confidence"`
}

// CapabilityScores holds one optional estimate per capability dimension.
// A nil entry means the dimension has never been touched for the user.
type CapabilityScores [NumCapabilityDimensions]*CapabilityEstimate

// Estimate returns the estimate for d, if tracked.
func (s *CapabilityScores) Estimate(d CapabilityDimension) (CapabilityEstimate, bool) {
	if !d.Valid() || s[d] == nil {
		return CapabilityEstimate{}, false
	}
	return *s[d], true
}

// SetEstimate stores e for d.
func (s *CapabilityScores) SetEstimate(d CapabilityDimension, e CapabilityEstimate) {
	if !d.Valid() {
		return
	}
	s[d] = &e
}

// Mean returns the mean for d, or 0 when untracked.
func (s *CapabilityScores) Mean(d CapabilityDimension) float64 {
	if e, ok := s.Estimate(d); ok {
		return e.Mean
	}
	return 0
}

// Len returns the number of tracked dimensions.
func (s *CapabilityScores) Len() int {
	n := 0
	for _, e := range s {
		if e != nil {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (s *CapabilityScores) Clone() CapabilityScores {
	var out CapabilityScores
	for i, e := range s {
		if e != nil {
			c := *e
			out[i] = &c
		}
	}
	return out
}

// Map returns the tracked estimates keyed by dimension.
func (s *CapabilityScores) Map() map[CapabilityDimension]CapabilityEstimate {
	out := make(map[CapabilityDimension]CapabilityEstimate, s.Len())
	for i, e := range s {
		if e != nil {
			out[CapabilityDimension(i)] = *e
		}
	}
	return out
}

func (s CapabilityScores) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *CapabilityScores) UnmarshalJSON(b []byte) error {
	var m map[CapabilityDimension]CapabilityEstimate
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = CapabilityScores{}
	for d, e := range m {
		s.SetEstimate(d, e)
	}
	return nil
}

// LanguageScores holds one optional estimate per language dimension.
type LanguageScores [NumLanguageDimensions]*CapabilityEstimate

// Estimate returns the estimate for d, if tracked.
func (s *LanguageScores) Estimate(d LanguageDimension) (CapabilityEstimate, bool) {
	if !d.Valid() || s[d] == nil {
		return CapabilityEstimate{}, false
	}
	return *s[d], true
}

// SetEstimate stores e for d.
func (s *LanguageScores) SetEstimate(d LanguageDimension, e CapabilityEstimate) {
	if !d.Valid() {
		return
	}
	s[d] = &e
}

// Clone returns a deep copy.
func (s *LanguageScores) Clone() LanguageScores {
	var out LanguageScores
	for i, e := range s {
		if e != nil {
			c := *e
			out[i] = &c
		}
	}
	return out
}

// Map returns the tracked estimates keyed by dimension.
func (s *LanguageScores) Map() map[LanguageDimension]CapabilityEstimate {
	out := make(map[LanguageDimension]CapabilityEstimate)
	for i, e := range s {
		if e != nil {
			out[LanguageDimension(i)] = *e
		}
	}
	return out
}

func (s LanguageScores) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *LanguageScores) UnmarshalJSON(b []byte) error {
	var m map[LanguageDimension]CapabilityEstimate
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = LanguageScores{}
	for d, e := range m {
		s.SetEstimate(d, e)
	}
	return nil
}
