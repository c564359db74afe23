package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Loofy147/Lsp/internal/capability"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/metrics"
	"github.com/Loofy147/Lsp/internal/profile"
)

// Warm rebuilds the tenant's in-memory state from the repository: activity
// profiles, histories and learning curves are replayed from stored events
// and capability estimates are restored as saved. Device fingerprints are
// not persisted and start empty. It returns the number of users loaded.
//
// Warm expects an empty tenant store and is meant to run once at startup.
func (p *Pipeline) Warm(ctx context.Context, tenantID string) (int, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Warm")
	defer span.End()

	userIDs, err := p.repo.ListUserIDs(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	store := p.stores.For(tenantID)
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := p.warmUser(ctx, store, tenantID, userID); err != nil {
			return 0, err
		}
	}

	if _, err := p.ReloadRules(ctx, tenantID); err != nil {
		return 0, err
	}

	metrics.TrackedUsers.WithLabelValues(tenantID).Set(float64(len(store.Users())))
	slog.Info("profile store warmed",
		"tenant_id", tenantID,
		"users", len(userIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return len(userIDs), nil
}

func (p *Pipeline) warmUser(ctx context.Context, store *profile.Store, tenantID, userID string) error {
	events, err := p.repo.ListActivitiesByUser(ctx, tenantID, userID, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to list activities for %s: %w", userID, err)
	}
	scores, err := p.repo.GetCapabilities(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to load capabilities for %s: %w", userID, err)
	}

	unlock := store.Lock(userID)
	defer unlock()

	for _, ev := range events {
		if err := store.AppendActivity(*ev); err != nil {
			if errors.Is(err, profile.ErrDuplicateSequence) {
				continue
			}
			return err
		}
		store.RecordActivity(userID, ev.Timestamp)
		if signal, ok := p.extractors.For(ev.Domain).Extract(ev.PerformanceMetrics); ok {
			capability.RecordProgress(store.Profile(userID), ev.Domain, ev.Timestamp, signal)
		}
	}

	prof := store.Profile(userID)
	for name, est := range scores {
		if lang, ok := strings.CutPrefix(name, languageKeyPrefix); ok {
			d, err := domain.ParseLanguageDimension(lang)
			if err != nil {
				slog.Warn("skipping unknown stored dimension", "tenant_id", tenantID, "user_id", userID, "dimension", name)
				continue
			}
			prof.LanguageCapabilities.SetEstimate(d, est)
			continue
		}
		d, err := domain.ParseCapabilityDimension(name)
		if err != nil {
			slog.Warn("skipping unknown stored dimension", "tenant_id", tenantID, "user_id", userID, "dimension", name)
			continue
		}
		prof.Capabilities.SetEstimate(d, est)
	}
	return nil
}
