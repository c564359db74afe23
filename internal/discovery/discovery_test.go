package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loofy147/Lsp/internal/domain"
)

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig(k int) domain.DiscoveryConfig {
	return domain.DiscoveryConfig{Clusters: k, Seed: 42, Inits: 10, MaxIter: 100}
}

func newTestEngine(t *testing.T, k int) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig(k))
	require.NoError(t, err)
	return e.WithClock(func() time.Time { return now })
}

func user(id string, caps map[domain.CapabilityDimension]float64, d domain.ActivityDomain, engagement ...float64) *domain.InternalProfile {
	u := domain.NewInternalProfile(id)
	for dim, mean := range caps {
		u.Capabilities.SetEstimate(dim, domain.CapabilityEstimate{Mean: mean, Variance: 0.1, Confidence: 0.5})
	}
	for i, e := range engagement {
		u.ActivityHistory = append(u.ActivityHistory, domain.ActivityEvent{
			ID:              fmt.Sprintf("%s-%d", id, i),
			UserID:          id,
			Timestamp:       now.Add(-time.Duration(len(engagement)-i) * 24 * time.Hour),
			Domain:          d,
			EngagementLevel: e,
		})
	}
	return u
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(domain.DiscoveryConfig{Clusters: 0, Inits: 1, MaxIter: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(domain.DiscoveryConfig{Clusters: 3, Inits: 0, MaxIter: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSmallPopulation(t *testing.T) {
	e := newTestEngine(t, 5)
	users := []*domain.InternalProfile{
		user("a", nil, domain.DomainSkillGames, 0.5),
		user("b", nil, domain.DomainSkillGames, 0.5),
	}

	got := e.DiscoverPatterns(users)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, e.DiscoverPatterns(nil))
}

func separatedPopulation() []*domain.InternalProfile {
	var users []*domain.InternalProfile
	groups := []struct {
		dim domain.CapabilityDimension
		dom domain.ActivityDomain
	}{
		{domain.Creativity, domain.DomainCreativeWork},
		{domain.AnalyticalThinking, domain.DomainProblemSolving},
		{domain.Reliability, domain.DomainFreelanceProjects},
	}
	for g, grp := range groups {
		for i := 0; i < 5; i++ {
			users = append(users, user(fmt.Sprintf("g%d-u%d", g, i),
				map[domain.CapabilityDimension]float64{grp.dim: 0.9},
				grp.dom, 0.6, 0.6, 0.6, 0.6))
		}
	}
	return users
}

func TestDiscoverSeparatedGroups(t *testing.T) {
	e := newTestEngine(t, 3)
	clusters := e.Discover(separatedPopulation())
	require.Len(t, clusters, 3)

	descriptions := map[string]bool{}
	for _, c := range clusters {
		p := c.Pattern
		assert.Len(t, c.Members, 5)
		assert.Equal(t, 5, p.MemberCount)
		assert.Equal(t, domain.PatternCandidate, p.Status)
		assert.Regexp(t, `^cluster_\d$`, p.ID)
		assert.Regexp(t, `^Pattern \d$`, p.Name)
		require.Len(t, p.CapabilityProfile, 1)
		for _, v := range p.CapabilityProfile {
			assert.InDelta(t, 0.9, v, 1e-12)
		}
		assert.InDelta(t, 1.0, p.Strength, 1e-6, "identical members sit on their centroid")
		assert.InDelta(t, 1.0, p.Consistency, 1e-12)
		assert.Len(t, p.TriggeringContexts, 1)
		assert.Len(t, p.CharacteristicBehaviors, 1)
		assert.InDelta(t, 0.6, p.TemporalSignature["avg_engagement"], 1e-12)
		assert.Equal(t, now, p.DiscoveredAt)
		descriptions[p.Description] = true

		for _, m := range c.Members {
			assert.Equal(t, p.TriggeringContexts[0], m.ActivityHistory[0].Domain)
		}
	}

	assert.Equal(t, map[string]bool{
		"Users who are strong in creativity":          true,
		"Users who are strong in analytical_thinking": true,
		"Users who are strong in reliability":         true,
	}, descriptions)
}

func TestDiscoverIsDeterministic(t *testing.T) {
	users := separatedPopulation()
	for i := 0; i < 6; i++ {
		users = append(users, user(fmt.Sprintf("mixed-%d", i),
			map[domain.CapabilityDimension]float64{domain.Creativity: 0.1 * float64(i), domain.Communication: 0.5},
			domain.DomainKnowledgeSharing, 0.2, 0.9, 0.4))
	}

	first := newTestEngine(t, 4).DiscoverPatterns(users)
	second := newTestEngine(t, 4).DiscoverPatterns(users)
	assert.Equal(t, first, second)
}

type singleCluster struct{}

func (singleCluster) Fit(points [][]float64, k int) ([]int, [][]float64) {
	return make([]int, len(points)), [][]float64{make([]float64, len(points[0]))}
}

func TestDescribeUsesClusterSize(t *testing.T) {
	e := newTestEngine(t, 1).WithClusterer(singleCluster{})
	users := []*domain.InternalProfile{
		user("a", map[domain.CapabilityDimension]float64{domain.Creativity: 0.8}, domain.DomainCreativeWork, 0.5),
		user("b", map[domain.CapabilityDimension]float64{domain.Creativity: 0.8}, domain.DomainCreativeWork, 0.5),
		user("c", map[domain.CapabilityDimension]float64{domain.Communication: 0.5}, domain.DomainSkillGames, 0.5),
		user("d", nil, domain.DomainSkillGames),
	}

	got := e.DiscoverPatterns(users)
	require.Len(t, got, 1)
	assert.Equal(t, "Users who are strong in creativity", got[0].Description)
	assert.InDelta(t, 0.4, got[0].CapabilityProfile[domain.Creativity], 1e-12)
	assert.Equal(t, []domain.ActivityDomain{domain.DomainCreativeWork, domain.DomainSkillGames}, got[0].TriggeringContexts)
	assert.Empty(t, got[0].CharacteristicBehaviors)
}

func TestDescribeWithoutCapabilities(t *testing.T) {
	e := newTestEngine(t, 1).WithClusterer(singleCluster{})
	got := e.DiscoverPatterns([]*domain.InternalProfile{user("a", nil, domain.DomainSkillGames, 0.3)})
	require.Len(t, got, 1)
	assert.Equal(t, "General activity pattern", got[0].Description)
	assert.Empty(t, got[0].CapabilityProfile)
}

func TestDominantTieGoesToLowestDimension(t *testing.T) {
	e := newTestEngine(t, 1).WithClusterer(singleCluster{})
	got := e.DiscoverPatterns([]*domain.InternalProfile{
		user("a", map[domain.CapabilityDimension]float64{domain.RiskTolerance: 0.7, domain.DomainDepth: 0.7}, domain.DomainSkillGames),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "Users who are strong in domain_depth", got[0].Description)
}

func TestFeatureVector(t *testing.T) {
	t.Run("NoHistory", func(t *testing.T) {
		v := FeatureVector(domain.NewInternalProfile("x"), now)
		require.Len(t, v, domain.NumCapabilityDimensions+4)
		assert.Equal(t, 0.0, v[featAvgEngagement])
		assert.Equal(t, 0.0, v[featActivityCount])
		assert.Equal(t, float64(inactiveDays), v[featDaysSinceLast])
		assert.Equal(t, 0.0, v[featActivitiesPerDay])
	})

	t.Run("WithHistory", func(t *testing.T) {
		u := domain.NewInternalProfile("x")
		u.Capabilities.SetEstimate(domain.Persistence, domain.CapabilityEstimate{Mean: 0.7})
		day0 := now.Add(-10*24*time.Hour - 5*time.Hour)
		u.ActivityHistory = []domain.ActivityEvent{
			{Timestamp: day0.Add(48 * time.Hour), EngagementLevel: 0.2},
			{Timestamp: day0, EngagementLevel: 0.6},
		}

		v := FeatureVector(u, now)
		assert.Equal(t, 0.7, v[domain.Persistence])
		assert.Equal(t, 0.0, v[domain.Creativity])
		assert.InDelta(t, 0.4, v[featAvgEngagement], 1e-12)
		assert.Equal(t, 2.0, v[featActivityCount])
		assert.Equal(t, 8.0, v[featDaysSinceLast])
		assert.InDelta(t, 2.0/3.0, v[featActivitiesPerDay], 1e-12)
	})
}

func TestNormalize(t *testing.T) {
	v := Normalize([][]float64{{1, 5}, {3, 5}})
	assert.InDelta(t, -1, v[0][0], 1e-5)
	assert.InDelta(t, 1, v[1][0], 1e-5)
	assert.Equal(t, 0.0, v[0][1], "constant columns collapse to zero")
	assert.Empty(t, Normalize(nil))
}

func TestKMeans(t *testing.T) {
	_, err := NewKMeans(1, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	km, err := NewKMeans(42, 10, 100)
	require.NoError(t, err)

	points := [][]float64{{0, 0}, {0.1, 0}, {0, 0.1}, {10, 10}, {10.1, 10}, {10, 10.1}}
	labels, centroids := km.Fit(points, 2)

	require.Len(t, labels, 6)
	require.Len(t, centroids, 2)
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.Equal(t, labels[3], labels[5])
	assert.NotEqual(t, labels[0], labels[3])

	again, _ := km.Fit(points, 2)
	assert.Equal(t, labels, again)

	t.Run("MoreClustersThanPoints", func(t *testing.T) {
		labels, centroids := km.Fit([][]float64{{1}, {2}}, 5)
		assert.Len(t, labels, 2)
		assert.Len(t, centroids, 2)
	})

	t.Run("IdenticalPoints", func(t *testing.T) {
		labels, _ := km.Fit([][]float64{{1, 1}, {1, 1}, {1, 1}}, 2)
		assert.Equal(t, []int{0, 0, 0}, labels)
	})
}
