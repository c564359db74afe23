package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "lsp-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetActivity", func(t *testing.T) {
		difficulty := 0.7
		ev := &domain.ActivityEvent{
			ID:                 "act-001",
			UserID:             "user-001",
			Timestamp:          base,
			Domain:             domain.DomainLanguageLearning,
			ActivityType:       "quiz",
			PerformanceMetrics: map[string]float64{"accuracy": 0.8},
			EngagementLevel:    0.6,
			SessionID:          "s-1",
			SequencePosition:   1,
			Difficulty:         &difficulty,
			TargetDimensions:   []domain.CapabilityDimension{domain.LearningSpeed},
		}
		if err := repo.SaveActivity(ctx, tenantID, ev); err != nil {
			t.Fatalf("SaveActivity failed: %v", err)
		}
		// Redelivery is ignored.
		if err := repo.SaveActivity(ctx, tenantID, ev); err != nil {
			t.Fatalf("duplicate SaveActivity failed: %v", err)
		}

		got, err := repo.GetActivity(ctx, tenantID, ev.ID)
		if err != nil {
			t.Fatalf("GetActivity failed: %v", err)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, got.TenantID)
		}
		if got.Domain != ev.Domain || got.ActivityType != ev.ActivityType {
			t.Errorf("unexpected domain/type: %s/%s", got.Domain, got.ActivityType)
		}
		if got.Difficulty == nil || *got.Difficulty != difficulty {
			t.Errorf("expected difficulty %.1f, got %v", difficulty, got.Difficulty)
		}
		if got.PerformanceMetrics["accuracy"] != 0.8 {
			t.Errorf("expected accuracy 0.8, got %v", got.PerformanceMetrics)
		}
		if len(got.TargetDimensions) != 1 || got.TargetDimensions[0] != domain.LearningSpeed {
			t.Errorf("unexpected target dimensions: %v", got.TargetDimensions)
		}
		if !got.Timestamp.Equal(base) {
			t.Errorf("expected timestamp %v, got %v", base, got.Timestamp)
		}
	})

	t.Run("ListActivitiesByUser", func(t *testing.T) {
		for i, offset := range []time.Duration{2 * time.Hour, time.Hour} {
			ev := &domain.ActivityEvent{
				ID:               "act-1" + string(rune('0'+i)),
				UserID:           "user-001",
				Timestamp:        base.Add(offset),
				Domain:           domain.DomainSkillGames,
				ActivityType:     "game",
				SessionID:        "s-2",
				SequencePosition: i,
			}
			if err := repo.SaveActivity(ctx, tenantID, ev); err != nil {
				t.Fatalf("SaveActivity failed: %v", err)
			}
		}

		events, err := repo.ListActivitiesByUser(ctx, tenantID, "user-001", base.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("ListActivitiesByUser failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if !events[0].Timestamp.Before(events[1].Timestamp) {
			t.Errorf("expected oldest first, got %v then %v", events[0].Timestamp, events[1].Timestamp)
		}
		if events[0].Difficulty != nil {
			t.Errorf("expected nil difficulty, got %v", *events[0].Difficulty)
		}

		all, err := repo.ListActivitiesByUser(ctx, tenantID, "user-001", time.Time{})
		if err != nil {
			t.Fatalf("ListActivitiesByUser failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 events, got %d", len(all))
		}
	})

	t.Run("ListUserIDs", func(t *testing.T) {
		if err := repo.SaveActivity(ctx, tenantID, &domain.ActivityEvent{
			ID: "act-900", UserID: "user-000", Timestamp: base, Domain: domain.DomainCreativeWork,
		}); err != nil {
			t.Fatalf("SaveActivity failed: %v", err)
		}
		ids, err := repo.ListUserIDs(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListUserIDs failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "user-000" || ids[1] != "user-001" {
			t.Errorf("unexpected user ids: %v", ids)
		}
	})

	t.Run("Capabilities", func(t *testing.T) {
		scores := map[string]domain.CapabilityEstimate{
			"creativity":  {Mean: 0.4, Variance: 0.15, Confidence: 0.3},
			"persistence": {Mean: 0.6, Variance: 0.1, Confidence: 0.5},
		}
		if err := repo.SaveCapabilities(ctx, tenantID, "user-001", scores); err != nil {
			t.Fatalf("SaveCapabilities failed: %v", err)
		}

		scores["creativity"] = domain.CapabilityEstimate{Mean: 0.5, Variance: 0.12, Confidence: 0.4}
		if err := repo.SaveCapabilities(ctx, tenantID, "user-001", scores); err != nil {
			t.Fatalf("SaveCapabilities update failed: %v", err)
		}

		got, err := repo.GetCapabilities(ctx, tenantID, "user-001")
		if err != nil {
			t.Fatalf("GetCapabilities failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 dimensions, got %d", len(got))
		}
		if got["creativity"] != scores["creativity"] {
			t.Errorf("expected updated creativity %+v, got %+v", scores["creativity"], got["creativity"])
		}

		empty, err := repo.GetCapabilities(ctx, tenantID, "nobody")
		if err != nil {
			t.Fatalf("GetCapabilities failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("expected no estimates, got %v", empty)
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.FraudAssessment{
			ID:             "fa-001",
			UserID:         "user-001",
			ActivityID:     "act-001",
			IsSuspicious:   true,
			RiskScore:      0.64,
			Recommendation: domain.RecommendReview,
			Reasoning:      "Detected 1 suspicious signal(s): Activity pace too fast",
			Signals: []domain.FraudSignal{{
				Type:        domain.SignalVelocityViolation,
				Severity:    0.8,
				Description: "Activity pace too fast",
				Evidence:    map[string]any{"interval_seconds": 0.5},
				Timestamp:   base,
			}},
			Timestamp: base,
		}
		if err := repo.SaveAssessment(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		got, err := repo.GetAssessment(ctx, tenantID, a.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if !got.IsSuspicious || got.RiskScore != a.RiskScore || got.Recommendation != a.Recommendation {
			t.Errorf("unexpected assessment: %+v", got)
		}
		if len(got.Signals) != 1 || got.Signals[0].Type != domain.SignalVelocityViolation {
			t.Errorf("unexpected signals: %+v", got.Signals)
		}
		if got.Signals[0].Evidence["interval_seconds"] != 0.5 {
			t.Errorf("unexpected evidence: %v", got.Signals[0].Evidence)
		}
	})

	t.Run("Patterns", func(t *testing.T) {
		p := &domain.BehaviorPattern{
			ID:                "cluster_0",
			Name:              "Pattern 0",
			Description:       "Users who are strong in creativity",
			CapabilityProfile: map[domain.CapabilityDimension]float64{domain.Creativity: 0.8},
			Strength:          0.9,
			MemberCount:       12,
			Status:            domain.PatternCandidate,
			DiscoveredAt:      base,
		}
		if err := repo.SavePattern(ctx, tenantID, p); err != nil {
			t.Fatalf("SavePattern failed: %v", err)
		}

		p.Status = domain.PatternAccepted
		p.Validation = &domain.PatternValidationResult{PatternID: p.ID, IsValid: true, SampleSize: 12}
		if err := repo.SavePattern(ctx, tenantID, p); err != nil {
			t.Fatalf("SavePattern update failed: %v", err)
		}

		patterns, err := repo.ListPatterns(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListPatterns failed: %v", err)
		}
		if len(patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(patterns))
		}
		got := patterns[0]
		if got.Status != domain.PatternAccepted || got.Validation == nil || !got.Validation.IsValid {
			t.Errorf("expected accepted pattern with validation, got %+v", got)
		}
		if got.CapabilityProfile[domain.Creativity] != 0.8 {
			t.Errorf("unexpected capability profile: %v", got.CapabilityProfile)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, got.TenantID)
		}
	})

	t.Run("SaveWellbeing", func(t *testing.T) {
		w := &domain.WellbeingAssessment{
			UserID:             "user-001",
			OverallScore:       0.8,
			Concerns:           []domain.WellbeingConcern{},
			PositiveIndicators: []string{"Balanced engagement"},
			WindowDays:         7,
			AsOf:               base,
		}
		if err := repo.SaveWellbeing(ctx, tenantID, w); err != nil {
			t.Fatalf("SaveWellbeing failed: %v", err)
		}
		// Same as-of replaces.
		if err := repo.SaveWellbeing(ctx, tenantID, w); err != nil {
			t.Fatalf("SaveWellbeing replace failed: %v", err)
		}
	})

	t.Run("AlertRules", func(t *testing.T) {
		rule := &domain.AlertRule{
			ID:         "high-risk",
			Name:       "High risk",
			Version:    "1.0.0",
			Expression: "risk_score",
			Bands: []domain.RuleBand{
				{SubRuleRef: domain.RuleOutcomeFail, Reason: "high"},
			},
			Enabled: true,
		}
		if err := repo.SaveAlertRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveAlertRule failed: %v", err)
		}

		got, err := repo.GetAlertRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetAlertRule failed: %v", err)
		}
		if got.Expression != rule.Expression || len(got.Bands) != 1 {
			t.Errorf("unexpected rule: %+v", got)
		}

		rules, err := repo.ListAlertRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListAlertRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule, got %d", len(rules))
		}

		rule.Enabled = false
		if err := repo.SaveAlertRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveAlertRule disable failed: %v", err)
		}
		if _, err := repo.GetAlertRule(ctx, tenantID, rule.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for disabled rule, got: %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		if _, err := repo.GetActivity(ctx, otherTenant, "act-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
		if _, err := repo.GetAssessment(ctx, otherTenant, "fa-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
		ids, err := repo.ListUserIDs(ctx, otherTenant)
		if err != nil {
			t.Fatalf("ListUserIDs failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected no users for other tenant, got %v", ids)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveActivity(ctx, "", &domain.ActivityEvent{ID: "x", UserID: "u"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
		if _, err := repo.GetCapabilities(ctx, "", "user-001"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
		if err := repo.SaveActivity(ctx, tenantID, &domain.ActivityEvent{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing ids, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetActivity(ctx, tenantID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetAssessment(ctx, tenantID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: memoryPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.SaveActivity(ctx, "t1", &domain.ActivityEvent{
		ID: "a1", UserID: "u1", Timestamp: time.Now().UTC(), Domain: domain.DomainSkillGames,
	}); err != nil {
		t.Fatalf("SaveActivity failed: %v", err)
	}
	if _, err := repo.GetActivity(ctx, "t1", "a1"); err != nil {
		t.Errorf("GetActivity failed: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "lsp", PostgresPassword: "secret"})
	want := "host=localhost port=5432 user=lsp password=secret dbname=lsp sslmode=disable application_name=lsp-analytics"
	if dsn != want {
		t.Errorf("postgresDSN() = %q, want %q", dsn, want)
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		if result := repo.rebind(tt.input); result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}
