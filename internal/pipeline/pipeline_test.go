package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loofy147/Lsp/internal/bus"
	"github.com/Loofy147/Lsp/internal/cache"
	"github.com/Loofy147/Lsp/internal/capability"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/profile"
	"github.com/Loofy147/Lsp/internal/repository"
	"github.com/Loofy147/Lsp/internal/rules"
)

const tenant = "tenant-001"

var now = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	p     *Pipeline
	repo  *repository.SQLRepository
	cache *cache.LRUCache
	bus   *bus.ChannelBus
}

func newFixture(t *testing.T, dbPath string, tune func(*domain.AnalyticsConfig)) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(1000)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	engine, err := rules.NewEngine(4)
	require.NoError(t, err)

	cfg := domain.DefaultAnalyticsConfig()
	if tune != nil {
		tune(&cfg)
	}
	p, err := New(cfg, repo, lru, b, engine)
	require.NoError(t, err)
	p.WithClock(func() time.Time { return now })

	return &fixture{p: p, repo: repo, cache: lru, bus: b}
}

func newTestFixture(t *testing.T, tune func(*domain.AnalyticsConfig)) *fixture {
	return newFixture(t, filepath.Join(t.TempDir(), "pipeline-test.db"), tune)
}

// collect subscribes to topic and returns the channel of received payloads.
func (f *fixture) collect(t *testing.T, topic string) <-chan []byte {
	t.Helper()
	out := make(chan []byte, 16)
	_, err := f.bus.Subscribe(context.Background(), tenant, topic, func(_ context.Context, msg *domain.Message) error {
		out <- msg.Payload
		return nil
	})
	require.NoError(t, err)
	return out
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func activity(user, session string, pos int, ts time.Time, d domain.ActivityDomain, score float64) *domain.ActivityEvent {
	return &domain.ActivityEvent{
		ID:                 fmt.Sprintf("%s-%s-%d", user, session, pos),
		UserID:             user,
		Timestamp:          ts,
		Domain:             d,
		ActivityType:       "exercise",
		PerformanceMetrics: map[string]float64{"score": score},
		EngagementLevel:    0.6,
		SessionID:          session,
		SequencePosition:   pos,
	}
}

func TestNewValidatesConfig(t *testing.T) {
	engine, err := rules.NewEngine(1)
	require.NoError(t, err)
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer repo.Close()

	cfg := domain.DefaultAnalyticsConfig()
	cfg.Discovery.Clusters = 0
	_, err = New(cfg, repo, cache.NewLRUCache(10), bus.NewChannelBus(10), engine)
	assert.Error(t, err)

	_, err = New(domain.DefaultAnalyticsConfig(), nil, cache.NewLRUCache(10), bus.NewChannelBus(10), engine)
	assert.Error(t, err)
}

func TestProcessAcceptsActivity(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()
	assessed := f.collect(t, domain.TopicActivityAssessed)

	res, err := f.p.Process(ctx, tenant, activity("u1", "s1", 0, now.Add(-time.Hour), domain.DomainSkillGames, 0.8), nil)
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, domain.RecommendAllow, res.Assessment.Recommendation)
	assert.Equal(t, tenant, res.Assessment.TenantID)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, int64(1), res.RecentCount)
	require.Contains(t, res.Capabilities, domain.PatternRecognition)
	require.Contains(t, res.Capabilities, domain.AnalyticalThinking)
	assert.Greater(t, res.Capabilities[domain.PatternRecognition], capability.Prior().Mean)
	require.NotNil(t, res.LearningCurve)
	assert.Len(t, res.LearningCurve.ProgressPoints, 1)

	stored, err := f.repo.GetActivity(ctx, tenant, res.Activity.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)

	scores, err := f.repo.GetCapabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.InDelta(t, res.Capabilities[domain.PatternRecognition], scores["pattern_recognition"].Mean, 1e-12)

	_, err = f.repo.GetAssessment(ctx, tenant, res.Assessment.ID)
	require.NoError(t, err)

	var published ProcessResult
	require.NoError(t, json.Unmarshal(receive(t, assessed), &published))
	assert.Equal(t, res.Activity.ID, published.Activity.ID)

	view, err := f.p.Capabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.ActivityCount)
	assert.Contains(t, view.LearningCurves, domain.DomainSkillGames)
}

func TestProcessDefaultsIDAndTimestamp(t *testing.T) {
	f := newTestFixture(t, nil)
	ev := &domain.ActivityEvent{UserID: "u1", Domain: domain.DomainCreativeWork, EngagementLevel: 0.5}

	res, err := f.p.Process(context.Background(), tenant, ev, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Activity.ID)
	assert.Equal(t, now, res.Activity.Timestamp)
	assert.Equal(t, tenant, res.Activity.TenantID)
	assert.Nil(t, res.LearningCurve, "no metrics, no progress point")
}

func TestProcessRejectsInvalidActivity(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()

	cases := map[string]*domain.ActivityEvent{
		"missing user": {Domain: domain.DomainSkillGames},
		"bad domain":   {UserID: "u1", Domain: "gardening"},
		"engagement":   {UserID: "u1", Domain: domain.DomainSkillGames, EngagementLevel: 1.5},
		"dimension":    {UserID: "u1", Domain: domain.DomainSkillGames, TargetDimensions: []domain.CapabilityDimension{99}},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.p.Process(ctx, tenant, ev, nil)
			assert.ErrorIs(t, err, ErrInvalidActivity)
		})
	}

	_, err := f.p.Process(ctx, "", activity("u1", "s", 0, now, domain.DomainSkillGames, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidActivity)
}

func TestProcessRejectsDuplicateSequence(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()

	_, err := f.p.Process(ctx, tenant, activity("u1", "s1", 3, now.Add(-time.Hour), domain.DomainSkillGames, 0.5), nil)
	require.NoError(t, err)

	dup := activity("u1", "s1", 3, now.Add(-30*time.Minute), domain.DomainSkillGames, 0.5)
	dup.ID = "another-id"
	_, err = f.p.Process(ctx, tenant, dup, nil)
	assert.ErrorIs(t, err, profile.ErrDuplicateSequence)

	view, err := f.p.Capabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.ActivityCount)

	_, err = f.repo.GetActivity(ctx, tenant, "another-id")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcessBlocksFastActivity(t *testing.T) {
	f := newTestFixture(t, func(cfg *domain.AnalyticsConfig) {
		cfg.Fraud.ReviewThreshold = 0.3
		cfg.Fraud.BlockThreshold = 0.6
	})
	ctx := context.Background()
	alerts := f.collect(t, domain.TopicFraudAlert)

	first := now.Add(-time.Hour)
	_, err := f.p.Process(ctx, tenant, activity("u1", "s1", 0, first, domain.DomainSkillGames, 0.5), nil)
	require.NoError(t, err)

	res, err := f.p.Process(ctx, tenant, activity("u1", "s1", 1, first.Add(100*time.Millisecond), domain.DomainSkillGames, 0.5), nil)
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.Equal(t, domain.RecommendBlock, res.Assessment.Recommendation)
	assert.Equal(t, []string{string(domain.SignalVelocityViolation)}, res.Assessment.SignalTypes())
	assert.Nil(t, res.Capabilities)
	assert.Equal(t, int64(2), res.RecentCount, "blocked attempts still count")

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "blocked-activity", res.Alerts[0].RuleID)
	assert.Equal(t, domain.RuleOutcomeFail, res.Alerts[0].SubRuleRef)

	_, err = f.repo.GetActivity(ctx, tenant, res.Activity.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.repo.GetAssessment(ctx, tenant, res.Assessment.ID)
	assert.NoError(t, err)

	var alert domain.FraudAlert
	require.NoError(t, json.Unmarshal(receive(t, alerts), &alert))
	assert.Equal(t, res.Activity.ID, alert.ActivityID)
	assert.Equal(t, domain.RecommendBlock, alert.Assessment.Recommendation)

	view, err := f.p.Capabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.ActivityCount, "blocked activity stays out of history")
}

func TestAlertRules(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()

	defaults, err := f.p.Rules(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, defaults, len(rules.DefaultRules()))

	bad := &domain.AlertRule{ID: "bad", Name: "Bad", Expression: `user_id`, Enabled: true}
	assert.ErrorIs(t, f.p.SaveRule(ctx, tenant, bad), rules.ErrInvalidRule)

	one := 1.0
	games := &domain.AlertRule{
		ID:         "skill-games",
		Name:       "Skill games",
		Expression: `domain == "skill_games"`,
		Bands: []domain.RuleBand{
			{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeReview, Reason: "Skill game activity"},
		},
		Enabled: true,
	}
	require.NoError(t, f.p.SaveRule(ctx, tenant, games))
	assert.Equal(t, defaultRuleVersion, games.Version)

	stored, err := f.p.Rules(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, stored, 1, "stored rules replace the defaults")

	got, err := f.p.Rule(ctx, tenant, "skill-games")
	require.NoError(t, err)
	assert.Equal(t, games.Expression, got.Expression)

	_, err = f.p.Rule(ctx, tenant, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	res, err := f.p.Process(ctx, tenant, activity("u1", "s1", 0, now, domain.DomainSkillGames, 0.5), nil)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "skill-games", res.Alerts[0].RuleID)
	assert.Equal(t, domain.RecommendAllow, res.Assessment.Recommendation, "rules never change the recommendation")

	n, err := f.p.ReloadRules(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDefaultRuleLookup(t *testing.T) {
	f := newTestFixture(t, nil)
	r, err := f.p.Rule(context.Background(), tenant, "stacked-signals")
	require.NoError(t, err)
	assert.Equal(t, tenant, r.TenantID)
}

func TestAssessStructured(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()

	act := &capability.StructuredActivity{
		ID:                 "quiz-1",
		ActivityType:       "quiz",
		DimensionsAssessed: []domain.LanguageDimension{domain.Vocabulary, domain.Grammar},
	}
	responses := []capability.GradedResponse{
		{QuestionID: "q1", Correct: true, TimeTaken: 10},
		{QuestionID: "q2", Correct: true, TimeTaken: 12},
		{QuestionID: "q3", Correct: false, TimeTaken: 20},
	}

	means, err := f.p.AssessStructured(ctx, tenant, "u1", act, responses)
	require.NoError(t, err)
	require.Len(t, means, 2)
	assert.Greater(t, means[domain.Vocabulary], capability.Prior().Mean)

	scores, err := f.repo.GetCapabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Contains(t, scores, "language.vocabulary")
	assert.Contains(t, scores, "language.grammar")

	view, err := f.p.Capabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Len(t, view.LanguageCapabilities, 2)
	assert.Empty(t, view.Capabilities)

	_, err = f.p.AssessStructured(ctx, tenant, "u1", &capability.StructuredActivity{ActivityType: "quiz"}, responses)
	assert.ErrorIs(t, err, ErrInvalidActivity)
}

func TestUnknownUser(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()

	_, err := f.p.Capabilities(ctx, tenant, "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = f.p.AssessWellbeing(ctx, tenant, "ghost", 0)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

// seed gives each user n accepted activities spread over the last days.
func seed(t *testing.T, f *fixture, users []string, d domain.ActivityDomain, score float64, n int) {
	t.Helper()
	for _, u := range users {
		for i := 0; i < n; i++ {
			ts := now.Add(-time.Duration(n-i) * 7 * time.Hour)
			_, err := f.p.Process(context.Background(), tenant, activity(u, "s1", i, ts, d, score), nil)
			require.NoError(t, err)
		}
	}
}

func TestRunDiscovery(t *testing.T) {
	f := newTestFixture(t, func(cfg *domain.AnalyticsConfig) {
		cfg.Discovery.Clusters = 2
		cfg.Discovery.Inits = 4
		cfg.Discovery.MaxIter = 50
		cfg.Validation.MinSampleSize = 2
	})
	ctx := context.Background()
	validated := f.collect(t, domain.TopicPatternsValidated)

	seed(t, f, []string{"a1", "a2", "a3"}, domain.DomainCreativeWork, 0.9, 3)
	seed(t, f, []string{"b1", "b2", "b3"}, domain.DomainProblemSolving, 0.2, 3)

	res, err := f.p.RunDiscovery(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Users)
	require.NotEmpty(t, res.Patterns)
	for _, bp := range res.Patterns {
		assert.Equal(t, tenant, bp.TenantID)
		assert.NotEqual(t, domain.PatternCandidate, bp.Status)
		require.NotNil(t, bp.Validation)
	}

	stored, err := f.repo.ListPatterns(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, stored, len(res.Patterns))

	cached, err := f.cache.Get(ctx, tenant, domain.PatternsCacheKey())
	require.NoError(t, err)
	assert.NotNil(t, cached)

	listed, err := f.p.Patterns(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, listed, len(res.Patterns))

	var published DiscoveryResult
	require.NoError(t, json.Unmarshal(receive(t, validated), &published))
	assert.Equal(t, res.Users, published.Users)
}

func TestPatternsFallsBackToRepository(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()

	empty, err := f.p.Patterns(ctx, tenant)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, f.cache.Delete(ctx, tenant, domain.PatternsCacheKey()))
	require.NoError(t, f.repo.SavePattern(ctx, tenant, &domain.BehaviorPattern{ID: "cluster_0", Name: "Pattern 0", Status: domain.PatternAccepted}))

	got, err := f.p.Patterns(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cluster_0", got[0].ID)
}

func TestDiscoveryOnEmptyTenant(t *testing.T) {
	f := newTestFixture(t, nil)
	res, err := f.p.RunDiscovery(context.Background(), tenant)
	require.NoError(t, err)
	assert.Zero(t, res.Users)
	assert.Empty(t, res.Patterns)
}

func TestAssessWellbeing(t *testing.T) {
	f := newTestFixture(t, nil)
	ctx := context.Background()
	seed(t, f, []string{"u1"}, domain.DomainSkillGames, 0.5, 3)

	a, err := f.p.AssessWellbeing(ctx, tenant, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, tenant, a.TenantID)
	assert.Equal(t, 7, a.WindowDays)

	cached, err := f.cache.Get(ctx, tenant, domain.WellbeingCacheKey("u1"))
	require.NoError(t, err)
	require.NotNil(t, cached)

	again, err := f.p.AssessWellbeing(ctx, tenant, "u1", 7)
	require.NoError(t, err)
	assert.Equal(t, a.OverallScore, again.OverallScore)

	wide, err := f.p.AssessWellbeing(ctx, tenant, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, wide.WindowDays)

	_, err = f.p.Process(ctx, tenant, activity("u1", "s2", 0, now, domain.DomainSkillGames, 0.5), nil)
	require.NoError(t, err)
	cached, err = f.cache.Get(ctx, tenant, domain.WellbeingCacheKey("u1"))
	require.NoError(t, err)
	assert.Nil(t, cached, "new activity invalidates the cached assessment")
}

func TestSweepWellbeing(t *testing.T) {
	f := newTestFixture(t, nil)
	f.p.WithSweepConcurrency(2)
	seed(t, f, []string{"u1", "u2", "u3"}, domain.DomainKnowledgeSharing, 0.5, 2)

	res, err := f.p.SweepWellbeing(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Assessed)
	assert.Zero(t, res.Interventions)

	empty, err := f.p.SweepWellbeing(context.Background(), "tenant-empty")
	require.NoError(t, err)
	assert.Zero(t, empty.Assessed)
}

func TestWarm(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "warm-test.db")
	first := newFixture(t, dbPath, nil)
	ctx := context.Background()

	seed(t, first, []string{"u1", "u2"}, domain.DomainCreativeWork, 0.7, 3)
	_, err := first.p.AssessStructured(ctx, tenant, "u1", &capability.StructuredActivity{
		ActivityType:       "quiz",
		DimensionsAssessed: []domain.LanguageDimension{domain.Reading},
	}, []capability.GradedResponse{{Correct: true, TimeTaken: 5}})
	require.NoError(t, err)

	want, err := first.p.Capabilities(ctx, tenant, "u1")
	require.NoError(t, err)

	second := newFixture(t, dbPath, nil)
	n, err := second.p.Warm(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := second.p.Capabilities(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Equal(t, want.ActivityCount, got.ActivityCount)
	assert.Equal(t, want.Capabilities, got.Capabilities)
	assert.Equal(t, want.LanguageCapabilities, got.LanguageCapabilities)
	require.Contains(t, got.LearningCurves, domain.DomainCreativeWork)
	assert.Len(t, got.LearningCurves[domain.DomainCreativeWork].ProgressPoints, 3)

	_, err = second.p.Process(ctx, tenant, activity("u1", "s1", 0, now, domain.DomainCreativeWork, 0.7), nil)
	assert.ErrorIs(t, err, profile.ErrDuplicateSequence, "sequence positions survive a restart")
}
