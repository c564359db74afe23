package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Loofy147/Lsp/internal/bus"
	"github.com/Loofy147/Lsp/internal/cache"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/metrics"
	"github.com/Loofy147/Lsp/internal/validation"
)

// DiscoveryResult summarises one pattern discovery run.
type DiscoveryResult struct {
	TenantID string                    `json:"tenantId"`
	Users    int                       `json:"users"`
	Accepted int                       `json:"accepted"`
	Patterns []*domain.BehaviorPattern `json:"patterns"`
	RanAt    time.Time                 `json:"ranAt"`
}

// RunDiscovery clusters a snapshot of the tenant's users, validates every
// cluster, persists and caches the outcome and publishes it. Concurrent
// calls for the same tenant share one run.
func (p *Pipeline) RunDiscovery(ctx context.Context, tenantID string) (*DiscoveryResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidActivity)
	}

	v, err, shared := p.flight.Do("discovery:"+tenantID, func() (any, error) {
		return p.runDiscovery(ctx, tenantID)
	})
	if err != nil {
		metrics.DiscoveryRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	if shared {
		slog.Debug("joined in-flight discovery run", "tenant_id", tenantID)
	}
	return v.(*DiscoveryResult), nil
}

func (p *Pipeline) runDiscovery(ctx context.Context, tenantID string) (*DiscoveryResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.RunDiscovery",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	store := p.stores.For(tenantID)
	users := store.Snapshot()
	metrics.TrackedUsers.WithLabelValues(tenantID).Set(float64(len(users)))

	clusters := p.discovery.Discover(users)
	result := &DiscoveryResult{
		TenantID: tenantID,
		Users:    len(users),
		Patterns: make([]*domain.BehaviorPattern, 0, len(clusters)),
		RanAt:    p.now().UTC(),
	}

	membership := make(map[string][]*domain.BehaviorPattern)
	for _, c := range clusters {
		pattern := validation.Finalize(c.Pattern, p.validator.ValidatePattern(c.Pattern, c.Members, users))
		pattern.TenantID = tenantID

		if err := p.repo.SavePattern(ctx, tenantID, pattern); err != nil {
			return nil, fmt.Errorf("failed to save pattern %s: %w", pattern.ID, err)
		}
		result.Patterns = append(result.Patterns, pattern)
		metrics.PatternsDiscovered.WithLabelValues(string(pattern.Status)).Inc()

		if pattern.Status != domain.PatternAccepted {
			continue
		}
		result.Accepted++
		for _, m := range c.Members {
			membership[m.UserID] = append(membership[m.UserID], pattern)
		}
	}

	// Refresh pattern membership on the live profiles.
	for _, u := range users {
		unlock := store.Lock(u.UserID)
		prof := store.Profile(u.UserID)
		prof.Patterns = make(map[string]*domain.BehaviorPattern, len(membership[u.UserID]))
		for _, bp := range membership[u.UserID] {
			prof.Patterns[bp.ID] = bp
		}
		unlock()
	}

	if err := cache.SetJSON(ctx, p.cache, tenantID, domain.PatternsCacheKey(), result.Patterns, p.cfg.ResultTTL); err != nil {
		slog.Warn("failed to cache patterns", "tenant_id", tenantID, "error", err)
	}
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicPatternsValidated, result); err != nil {
		slog.Warn("failed to publish patterns", "tenant_id", tenantID, "error", err)
	}

	metrics.DiscoveryRuns.WithLabelValues("ok").Inc()
	slog.Info("pattern discovery complete",
		"tenant_id", tenantID,
		"users", result.Users,
		"patterns", len(result.Patterns),
		"accepted", result.Accepted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Patterns returns the tenant's last discovered patterns, from the cache
// when possible.
func (p *Pipeline) Patterns(ctx context.Context, tenantID string) ([]*domain.BehaviorPattern, error) {
	cached, found, err := cache.GetJSON[[]*domain.BehaviorPattern](ctx, p.cache, tenantID, domain.PatternsCacheKey())
	if err != nil {
		slog.Warn("pattern cache unavailable", "tenant_id", tenantID, "error", err)
	}
	if found {
		return cached, nil
	}

	patterns, err := p.repo.ListPatterns(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	if patterns == nil {
		patterns = []*domain.BehaviorPattern{}
	}
	if err := cache.SetJSON(ctx, p.cache, tenantID, domain.PatternsCacheKey(), patterns, p.cfg.ResultTTL); err != nil {
		slog.Warn("failed to cache patterns", "tenant_id", tenantID, "error", err)
	}
	return patterns, nil
}

// AssessWellbeing evaluates the user's recent engagement. A non-positive
// recentDays uses the configured window; results for that window are cached
// until the user's next accepted activity.
func (p *Pipeline) AssessWellbeing(ctx context.Context, tenantID, userID string, recentDays int) (*domain.WellbeingAssessment, error) {
	if recentDays <= 0 {
		recentDays = p.wellbeing.WindowDays()
	}
	cacheable := recentDays == p.wellbeing.WindowDays()

	if cacheable {
		cached, found, err := cache.GetJSON[*domain.WellbeingAssessment](ctx, p.cache, tenantID, domain.WellbeingCacheKey(userID))
		if err != nil {
			slog.Warn("wellbeing cache unavailable", "tenant_id", tenantID, "user_id", userID, "error", err)
		}
		if found && cached != nil {
			return cached, nil
		}
	}
	return p.assessWellbeing(ctx, tenantID, userID, recentDays)
}

func (p *Pipeline) assessWellbeing(ctx context.Context, tenantID, userID string, recentDays int) (*domain.WellbeingAssessment, error) {
	store := p.stores.For(tenantID)
	if !store.HasUser(userID) {
		return nil, fmt.Errorf("%s: %w", userID, ErrUnknownUser)
	}

	unlock := store.Lock(userID)
	snap := store.Profile(userID).Clone()
	unlock()

	a := p.wellbeing.AssessWellbeing(snap, recentDays)
	a.TenantID = tenantID

	if err := p.repo.SaveWellbeing(ctx, tenantID, a); err != nil {
		return nil, fmt.Errorf("failed to save wellbeing assessment: %w", err)
	}
	if a.WindowDays == p.wellbeing.WindowDays() {
		if err := cache.SetJSON(ctx, p.cache, tenantID, domain.WellbeingCacheKey(userID), a, p.cfg.ResultTTL); err != nil {
			slog.Warn("failed to cache wellbeing assessment", "tenant_id", tenantID, "user_id", userID, "error", err)
		}
	}
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicWellbeingAssessed, a); err != nil {
		slog.Warn("failed to publish wellbeing assessment", "tenant_id", tenantID, "user_id", userID, "error", err)
	}

	metrics.WellbeingAssessments.WithLabelValues(metrics.BoolLabel(a.InterventionRecommended)).Inc()
	if a.InterventionRecommended {
		slog.Info("wellbeing intervention recommended",
			"tenant_id", tenantID,
			"user_id", userID,
			"overall_score", a.OverallScore,
		)
	}
	return a, nil
}

// SweepResult summarises a wellbeing sweep.
type SweepResult struct {
	TenantID      string `json:"tenantId"`
	Assessed      int    `json:"assessed"`
	Interventions int    `json:"interventions"`
}

// SweepWellbeing reassesses every known user of the tenant with the default
// window, bypassing the cache. The first failure cancels the sweep.
func (p *Pipeline) SweepWellbeing(ctx context.Context, tenantID string) (*SweepResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.SweepWellbeing",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	users := p.stores.For(tenantID).Users()
	metrics.TrackedUsers.WithLabelValues(tenantID).Set(float64(len(users)))

	var assessed, interventions atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.sweepConcurrency)
	for _, userID := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := p.assessWellbeing(gctx, tenantID, userID, p.wellbeing.WindowDays())
			if err != nil {
				return err
			}
			assessed.Add(1)
			if a.InterventionRecommended {
				interventions.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("wellbeing sweep: %w", err)
	}

	return &SweepResult{
		TenantID:      tenantID,
		Assessed:      int(assessed.Load()),
		Interventions: int(interventions.Load()),
	}, nil
}
