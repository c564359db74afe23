// Package velocity counts recent activity per user for alert rules.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
)

// DefaultWindow is used when no window is configured.
const DefaultWindow = time.Hour

// Service counts a user's activities inside a rolling window. The cache
// counter is authoritative; the repository is the fallback when the cache
// is unavailable.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
	now    func() time.Time
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{repo: repo, cache: cache, window: window, now: time.Now}
}

// WithClock replaces the time source used by the repository fallback.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Window returns the counting window.
func (s *Service) Window() time.Duration { return s.window }

// Record counts one new activity for userID and returns the count in the
// current window, including this one.
func (s *Service) Record(ctx context.Context, tenantID, userID string) (int64, error) {
	if tenantID == "" || userID == "" {
		return 0, fmt.Errorf("tenantID and userID are required")
	}

	if s.cache != nil {
		count, err := s.cache.IncrementCounter(ctx, tenantID, domain.ActivityCounterKey(userID), s.window)
		if err == nil {
			return count, nil
		}
		slog.Warn("activity counter unavailable, counting from repository",
			"tenant_id", tenantID,
			"user_id", userID,
			"error", err,
		)
	}

	return s.Count(ctx, tenantID, userID)
}

// Count returns the number of stored activities of userID inside the window.
func (s *Service) Count(ctx context.Context, tenantID, userID string) (int64, error) {
	if s.repo == nil {
		return 0, errors.New("no data source available")
	}

	events, err := s.repo.ListActivitiesByUser(ctx, tenantID, userID, s.now().Add(-s.window))
	if err != nil {
		return 0, fmt.Errorf("failed to list activities: %w", err)
	}
	return int64(len(events)), nil
}
