// Package worker provides asynchronous activity ingestion and the periodic
// batch jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Loofy147/Lsp/internal/bus"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/pipeline"
	"github.com/Loofy147/Lsp/internal/profile"
)

// Worker processes ingested activities from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to consume (empty = every tenant)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to TopicActivityIngested for the given tenants, or for
// every tenant when none are given.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(bus.AnyTenant, func(ctx context.Context, msg *domain.Message) error {
			return w.processActivity(ctx, msg.TenantID, msg)
		})
	}

	for _, tenantID := range cfg.TenantIDs {
		err := w.subscribe(tenantID, func(ctx context.Context, msg *domain.Message) error {
			return w.processActivity(ctx, tenantID, msg)
		})
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)
	return nil
}

func (w *Worker) subscribe(tenantID string, handler domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicActivityIngested, handler)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicActivityIngested,
	)
	return nil
}

// processActivity runs one ingested activity through the pipeline. Malformed
// and duplicate messages are logged and dropped.
func (w *Worker) processActivity(ctx context.Context, tenantID string, msg *domain.Message) error {
	var env domain.IngestEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		slog.Error("failed to parse activity message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use the activity's tenant if provided
	if env.Activity.TenantID != "" {
		tenantID = env.Activity.TenantID
	}

	res, err := w.pipeline.Process(ctx, tenantID, &env.Activity, env.Context)
	if err != nil {
		if errors.Is(err, profile.ErrDuplicateSequence) {
			slog.Warn("dropping duplicate activity",
				"tenant_id", tenantID,
				"activity_id", env.Activity.ID,
				"message_id", msg.ID,
			)
			return nil
		}
		slog.Error("activity processing failed",
			"tenant_id", tenantID,
			"activity_id", env.Activity.ID,
			"error", err,
		)
		return err
	}

	w.reply(ctx, msg, res)
	return nil
}

// reply answers request-style messages with the processing result.
func (w *Worker) reply(ctx context.Context, msg *domain.Message, res *pipeline.ProcessResult) {
	if msg.Metadata[bus.MetaReplyTo] == "" {
		return
	}
	replier, ok := w.bus.(bus.Replier)
	if !ok {
		return
	}

	payload, err := json.Marshal(res)
	if err == nil {
		err = replier.Reply(ctx, msg, payload)
	}
	if err != nil {
		slog.Warn("failed to reply to activity request",
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// Stop unsubscribes every tenant worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

// Scheduler runs pattern discovery and wellbeing sweeps on fixed intervals.
type Scheduler struct {
	pipeline *pipeline.Pipeline
	cfg      domain.SchedulerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Nothing runs until Start.
func NewScheduler(p *pipeline.Pipeline, cfg domain.SchedulerConfig) *Scheduler {
	return &Scheduler{pipeline: p, cfg: cfg}
}

// Start launches one loop per job with a positive interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, "discovery", s.cfg.DiscoveryInterval, s.RunDiscovery)
	s.loop(ctx, "wellbeing", s.cfg.WellbeingInterval, s.RunWellbeing)

	slog.Info("scheduler started",
		"discovery_interval", s.cfg.DiscoveryInterval.String(),
		"wellbeing_interval", s.cfg.WellbeingInterval.String(),
	)
}

func (s *Scheduler) loop(ctx context.Context, job string, every time.Duration, run func(context.Context)) {
	if every <= 0 {
		slog.Info("scheduled job disabled", "job", job)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
}

// Stop cancels the loops and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// tenants returns the configured tenants, or every tenant seen so far.
func (s *Scheduler) tenants() []string {
	if len(s.cfg.Tenants) > 0 {
		return s.cfg.Tenants
	}
	return s.pipeline.Tenants()
}

// RunDiscovery runs pattern discovery once for every tenant.
func (s *Scheduler) RunDiscovery(ctx context.Context) {
	for _, tenantID := range s.tenants() {
		if _, err := s.pipeline.RunDiscovery(ctx, tenantID); err != nil {
			slog.Error("scheduled discovery failed",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
}

// RunWellbeing sweeps wellbeing once for every tenant.
func (s *Scheduler) RunWellbeing(ctx context.Context) {
	for _, tenantID := range s.tenants() {
		res, err := s.pipeline.SweepWellbeing(ctx, tenantID)
		if err != nil {
			slog.Error("scheduled wellbeing sweep failed",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		slog.Info("wellbeing sweep complete",
			"tenant_id", tenantID,
			"assessed", res.Assessed,
			"interventions", res.Interventions,
		)
	}
}
