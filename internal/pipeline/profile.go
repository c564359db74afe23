package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Loofy147/Lsp/internal/capability"
	"github.com/Loofy147/Lsp/internal/domain"
)

// CapabilityView is the read model of a user's estimates and progress.
type CapabilityView struct {
	UserID               string                                                   `json:"userId"`
	Capabilities         map[domain.CapabilityDimension]domain.CapabilityEstimate `json:"capabilities"`
	LanguageCapabilities map[domain.LanguageDimension]domain.CapabilityEstimate   `json:"languageCapabilities"`
	LearningCurves       map[domain.ActivityDomain]*domain.LearningCurve          `json:"learningCurves"`
	Patterns             []string                                                 `json:"patterns"`
	ActivityCount        int                                                      `json:"activityCount"`
	UpdatedAt            time.Time                                                `json:"updatedAt"`
}

// Capabilities returns the current view of userID.
func (p *Pipeline) Capabilities(ctx context.Context, tenantID, userID string) (*CapabilityView, error) {
	store := p.stores.For(tenantID)
	if !store.HasUser(userID) {
		return nil, fmt.Errorf("%s: %w", userID, ErrUnknownUser)
	}

	unlock := store.Lock(userID)
	snap := store.Profile(userID).Clone()
	unlock()

	patterns := make([]string, 0, len(snap.Patterns))
	for id := range snap.Patterns {
		patterns = append(patterns, id)
	}
	sort.Strings(patterns)

	return &CapabilityView{
		UserID:               userID,
		Capabilities:         snap.Capabilities.Map(),
		LanguageCapabilities: snap.LanguageCapabilities.Map(),
		LearningCurves:       snap.LearningCurves,
		Patterns:             patterns,
		ActivityCount:        len(snap.ActivityHistory),
		UpdatedAt:            snap.UpdatedAt,
	}, nil
}

// AssessStructured updates the user's language estimates from a graded
// structured assessment and persists them.
func (p *Pipeline) AssessStructured(ctx context.Context, tenantID, userID string, activity *capability.StructuredActivity, responses []capability.GradedResponse) (map[domain.LanguageDimension]float64, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: tenantID and userId are required", ErrInvalidActivity)
	}
	if activity == nil || len(activity.DimensionsAssessed) == 0 {
		return nil, fmt.Errorf("%w: at least one assessed dimension is required", ErrInvalidActivity)
	}
	for _, d := range activity.DimensionsAssessed {
		if !d.Valid() {
			return nil, fmt.Errorf("%w: unknown language dimension %d", ErrInvalidActivity, int(d))
		}
	}

	ctx, span := tracer.Start(ctx, "pipeline.AssessStructured")
	defer span.End()

	store := p.stores.For(tenantID)
	unlock := store.Lock(userID)
	prof := store.Profile(userID)
	means := p.structured.Assess(&prof.LanguageCapabilities, activity, responses)
	prof.UpdatedAt = p.now().UTC()

	scores := make(map[string]domain.CapabilityEstimate, len(means))
	for d := range means {
		est, _ := prof.LanguageCapabilities.Estimate(d)
		scores[languageKeyPrefix+d.String()] = est
	}
	unlock()

	if err := p.repo.SaveCapabilities(ctx, tenantID, userID, scores); err != nil {
		return nil, fmt.Errorf("failed to save language capabilities: %w", err)
	}
	return means, nil
}
