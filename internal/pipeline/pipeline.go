// Package pipeline wires the analytics components to storage, cache and the
// event bus.
//
// The online path (Process) assesses one activity at a time under the user's
// store lock. The batch paths (RunDiscovery, SweepWellbeing) work on
// snapshots and never block ingestion for longer than a profile copy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Loofy147/Lsp/internal/bus"
	"github.com/Loofy147/Lsp/internal/capability"
	"github.com/Loofy147/Lsp/internal/discovery"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/fraud"
	"github.com/Loofy147/Lsp/internal/metrics"
	"github.com/Loofy147/Lsp/internal/profile"
	"github.com/Loofy147/Lsp/internal/rules"
	"github.com/Loofy147/Lsp/internal/validation"
	"github.com/Loofy147/Lsp/internal/velocity"
	"github.com/Loofy147/Lsp/internal/wellbeing"
)

var (
	// ErrInvalidActivity is returned for activities that fail basic checks.
	ErrInvalidActivity = errors.New("invalid activity")

	// ErrUnknownUser is returned when a user has no profile in the tenant.
	ErrUnknownUser = errors.New("unknown user")
)

// languageKeyPrefix marks language estimates in the capability table.
const languageKeyPrefix = "language."

const defaultSweepConcurrency = 8

var tracer = otel.Tracer("lsp-pipeline")

// Pipeline runs the online and batch analytics flows for every tenant.
type Pipeline struct {
	cfg domain.AnalyticsConfig

	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	rules    *rules.Engine
	velocity *velocity.Service

	stores     *profile.Registry
	extractors *capability.Extractors
	assessor   *capability.Assessor[domain.CapabilityDimension]
	structured *capability.StructuredAssessor
	discovery  *discovery.Engine
	validator  *validation.Validator
	wellbeing  *wellbeing.Monitor

	detectorsMu sync.Mutex
	detectors   map[string]*fraud.Detector

	rulesLoaded sync.Map // tenant -> struct{}
	flight      singleflight.Group

	sweepConcurrency int
	now              func() time.Time
}

// New validates cfg and builds a pipeline on top of the given backends.
func New(cfg domain.AnalyticsConfig, repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, engine *rules.Engine) (*Pipeline, error) {
	if repo == nil || cache == nil || eventBus == nil || engine == nil {
		return nil, errors.New("pipeline requires a repository, cache, event bus and rule engine")
	}

	// Probe the fraud thresholds once so a bad config fails at startup
	// rather than on the first activity of each tenant.
	if _, err := fraud.NewDetector(profile.NewStore(), cfg.Fraud); err != nil {
		return nil, err
	}
	disc, err := discovery.NewEngine(cfg.Discovery)
	if err != nil {
		return nil, err
	}
	val, err := validation.NewValidator(cfg.Validation)
	if err != nil {
		return nil, err
	}
	mon, err := wellbeing.NewMonitor(cfg.Wellbeing)
	if err != nil {
		return nil, err
	}

	extractors := capability.DefaultExtractors()
	return &Pipeline{
		cfg:              cfg,
		repo:             repo,
		cache:            cache,
		bus:              eventBus,
		rules:            engine,
		velocity:         velocity.NewService(repo, cache, cfg.RecentWindow),
		stores:           profile.NewRegistry(),
		extractors:       extractors,
		assessor:         capability.NewAssessor[domain.CapabilityDimension](extractors),
		structured:       capability.NewStructuredAssessor(),
		discovery:        disc,
		validator:        val,
		wellbeing:        mon,
		detectors:        make(map[string]*fraud.Detector),
		sweepConcurrency: defaultSweepConcurrency,
		now:              time.Now,
	}, nil
}

// WithClock replaces the time source of every time-dependent component.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	p.discovery.WithClock(now)
	p.velocity.WithClock(now)

	p.detectorsMu.Lock()
	for _, d := range p.detectors {
		d.WithClock(now)
	}
	p.detectorsMu.Unlock()
	return p
}

// WithSweepConcurrency bounds the parallelism of SweepWellbeing.
func (p *Pipeline) WithSweepConcurrency(n int) *Pipeline {
	if n > 0 {
		p.sweepConcurrency = n
	}
	return p
}

// Tenants returns every tenant with in-memory state.
func (p *Pipeline) Tenants() []string {
	return p.stores.Tenants()
}

func (p *Pipeline) detector(tenantID string) *fraud.Detector {
	p.detectorsMu.Lock()
	defer p.detectorsMu.Unlock()

	d, ok := p.detectors[tenantID]
	if !ok {
		// Config was checked in New.
		d, _ = fraud.NewDetector(p.stores.For(tenantID), p.cfg.Fraud)
		d.WithClock(p.now)
		p.detectors[tenantID] = d
	}
	return d
}

// ProcessResult is the outcome of the online path for one activity.
type ProcessResult struct {
	Activity      *domain.ActivityEvent                  `json:"activity"`
	Assessment    *domain.FraudAssessment                `json:"assessment"`
	Accepted      bool                                   `json:"accepted"`
	Capabilities  map[domain.CapabilityDimension]float64 `json:"capabilities,omitempty"`
	LearningCurve *domain.LearningCurve                  `json:"learningCurve,omitempty"`
	RecentCount   int64                                  `json:"recentCount"`
	Alerts        []domain.RuleResult                    `json:"alerts,omitempty"`
}

// Process assesses ev for authenticity and, unless it is blocked, folds it
// into the user's history, capability estimates and learning curve. The
// activity, the updated estimates and the assessment are persisted; alert
// rules run over the assessment and the outcome is published.
//
// A repeated (session, sequence position) pair is rejected with
// profile.ErrDuplicateSequence before any state changes.
func (p *Pipeline) Process(ctx context.Context, tenantID string, ev *domain.ActivityEvent, rc *domain.RequestContext) (*ProcessResult, error) {
	start := time.Now()
	if err := p.normalize(tenantID, ev); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "pipeline.Process",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("user.id", ev.UserID),
			attribute.String("activity.id", ev.ID),
		),
	)
	defer span.End()

	store := p.stores.For(tenantID)
	det := p.detector(tenantID)
	res := &ProcessResult{Activity: ev}
	var scores map[string]domain.CapabilityEstimate

	unlock := store.Lock(ev.UserID)
	if store.SequenceSeen(ev.UserID, ev.SessionID, ev.SequencePosition) {
		unlock()
		return nil, fmt.Errorf("activity %s: session %s position %d: %w",
			ev.ID, ev.SessionID, ev.SequencePosition, profile.ErrDuplicateSequence)
	}

	res.Assessment = det.AssessActivityAuthenticity(ev.UserID, ev, rc)
	res.Assessment.TenantID = tenantID

	if res.Assessment.Recommendation != domain.RecommendBlock {
		if err := store.AppendActivity(*ev); err != nil {
			unlock()
			return nil, err
		}
		prof := store.Profile(ev.UserID)
		res.Capabilities = p.assessor.AssessFromActivity(&prof.Capabilities, ev, ev.PerformanceMetrics, capability.TargetDimensions(ev))
		if signal, ok := p.extractors.For(ev.Domain).Extract(ev.PerformanceMetrics); ok {
			res.LearningCurve = cloneCurve(capability.RecordProgress(prof, ev.Domain, ev.Timestamp, signal))
		}

		scores = make(map[string]domain.CapabilityEstimate, len(res.Capabilities))
		for d := range res.Capabilities {
			est, _ := prof.Capabilities.Estimate(d)
			scores[d.String()] = est
		}
		res.Accepted = true
	}
	unlock()

	if res.Accepted {
		if err := p.repo.SaveActivity(ctx, tenantID, ev); err != nil {
			return nil, fmt.Errorf("failed to save activity: %w", err)
		}
		if len(scores) > 0 {
			if err := p.repo.SaveCapabilities(ctx, tenantID, ev.UserID, scores); err != nil {
				return nil, fmt.Errorf("failed to save capabilities: %w", err)
			}
		}
		if err := p.cache.Delete(ctx, tenantID, domain.WellbeingCacheKey(ev.UserID)); err != nil {
			slog.Warn("failed to invalidate wellbeing cache",
				"tenant_id", tenantID,
				"user_id", ev.UserID,
				"error", err,
			)
		}
	}
	if err := p.repo.SaveAssessment(ctx, tenantID, res.Assessment); err != nil {
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}

	recent, err := p.velocity.Record(ctx, tenantID, ev.UserID)
	if err != nil {
		slog.Warn("recent activity count unavailable",
			"tenant_id", tenantID,
			"user_id", ev.UserID,
			"error", err,
		)
	}
	res.RecentCount = recent

	res.Alerts = p.evaluateRules(ctx, tenantID, ev, res.Assessment, recent)

	p.observe(res)
	p.publishResult(ctx, tenantID, res)

	metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Float64("risk.score", res.Assessment.RiskScore),
		attribute.String("recommendation", string(res.Assessment.Recommendation)),
	)

	slog.Debug("activity processed",
		"tenant_id", tenantID,
		"user_id", ev.UserID,
		"activity_id", ev.ID,
		"risk_score", res.Assessment.RiskScore,
		"recommendation", res.Assessment.Recommendation,
		"alerts", len(res.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res, nil
}

func (p *Pipeline) normalize(tenantID string, ev *domain.ActivityEvent) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("%w: tenantID is required", ErrInvalidActivity)
	case ev == nil:
		return fmt.Errorf("%w: activity is required", ErrInvalidActivity)
	case ev.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidActivity)
	case !ev.Domain.Valid():
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidActivity, ev.Domain)
	case ev.EngagementLevel < 0 || ev.EngagementLevel > 1:
		return fmt.Errorf("%w: engagementLevel must be in [0, 1], got %v", ErrInvalidActivity, ev.EngagementLevel)
	}
	for _, d := range ev.TargetDimensions {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown target dimension %d", ErrInvalidActivity, int(d))
		}
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.TenantID = tenantID
	return nil
}

func (p *Pipeline) evaluateRules(ctx context.Context, tenantID string, ev *domain.ActivityEvent, a *domain.FraudAssessment, recent int64) []domain.RuleResult {
	if err := p.ensureRules(ctx, tenantID); err != nil {
		slog.Error("failed to load alert rules",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil
	}

	results := p.rules.EvaluateAll(ctx, &domain.RuleInput{
		TenantID:       tenantID,
		UserID:         ev.UserID,
		ActivityID:     ev.ID,
		Domain:         string(ev.Domain),
		ActivityType:   ev.ActivityType,
		Engagement:     ev.EngagementLevel,
		RiskScore:      a.RiskScore,
		Recommendation: string(a.Recommendation),
		SignalTypes:    a.SignalTypes(),
		RecentCount:    recent,
	})

	var triggered []domain.RuleResult
	for _, r := range results {
		if r.SubRuleRef == domain.RuleOutcomeError {
			slog.Warn("alert rule evaluation failed",
				"tenant_id", tenantID,
				"rule_id", r.RuleID,
				"reason", r.Reason,
			)
			continue
		}
		if r.Triggered() {
			triggered = append(triggered, r)
		}
	}
	return triggered
}

func (p *Pipeline) observe(res *ProcessResult) {
	a := res.Assessment
	metrics.ActivitiesProcessed.WithLabelValues(string(a.Recommendation)).Inc()
	metrics.RiskScore.Observe(a.RiskScore)
	for _, s := range a.Signals {
		metrics.FraudSignals.WithLabelValues(string(s.Type)).Inc()
	}
	for _, r := range res.Alerts {
		metrics.AlertsTriggered.WithLabelValues(r.RuleID, r.SubRuleRef).Inc()
	}
}

func (p *Pipeline) publishResult(ctx context.Context, tenantID string, res *ProcessResult) {
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicActivityAssessed, res); err != nil {
		slog.Warn("failed to publish assessment",
			"tenant_id", tenantID,
			"activity_id", res.Activity.ID,
			"error", err,
		)
	}

	if len(res.Alerts) == 0 && res.Assessment.Recommendation == domain.RecommendAllow {
		return
	}
	alert := &domain.FraudAlert{
		TenantID:   tenantID,
		UserID:     res.Activity.UserID,
		ActivityID: res.Activity.ID,
		Assessment: res.Assessment,
		Rules:      res.Alerts,
	}
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicFraudAlert, alert); err != nil {
		slog.Warn("failed to publish fraud alert",
			"tenant_id", tenantID,
			"activity_id", res.Activity.ID,
			"error", err,
		)
	}
}

func cloneCurve(c *domain.LearningCurve) *domain.LearningCurve {
	if c == nil {
		return nil
	}
	out := *c
	out.ProgressPoints = append([]domain.ProgressPoint(nil), c.ProgressPoints...)
	return &out
}
