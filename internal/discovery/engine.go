// Package discovery finds behaviour patterns across a user population.
//
// Each user is reduced to a feature vector of capability means and activity
// statistics, the vectors are z-score normalised and clustered, and each
// non-empty cluster is described as a candidate BehaviorPattern.
package discovery

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// ErrInvalidConfig is returned for unusable discovery parameters.
var ErrInvalidConfig = errors.New("invalid discovery config")

// highCapability is the cluster average at which a dimension becomes a
// characteristic behaviour.
const highCapability = 0.6

// maxTriggeringContexts bounds the domains listed on a pattern.
const maxTriggeringContexts = 3

// Cluster is a discovered pattern together with the users that formed it.
type Cluster struct {
	Pattern *domain.BehaviorPattern
	Members []*domain.InternalProfile
}

// Engine discovers candidate patterns.
type Engine struct {
	k         int
	clusterer Clusterer
	now       func() time.Time
}

// NewEngine creates an engine using seeded k-means.
func NewEngine(cfg domain.DiscoveryConfig) (*Engine, error) {
	if cfg.Clusters < 1 {
		return nil, fmt.Errorf("%w: clusters must be >= 1, got %d", ErrInvalidConfig, cfg.Clusters)
	}
	km, err := NewKMeans(cfg.Seed, cfg.Inits, cfg.MaxIter)
	if err != nil {
		return nil, err
	}
	return &Engine{k: cfg.Clusters, clusterer: km, now: time.Now}, nil
}

// WithClusterer swaps the clustering algorithm.
func (e *Engine) WithClusterer(c Clusterer) *Engine {
	e.clusterer = c
	return e
}

// WithClock sets the reference time used for recency features.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// DiscoverPatterns returns one candidate pattern per non-empty cluster.
// Populations smaller than the cluster count yield no patterns.
func (e *Engine) DiscoverPatterns(users []*domain.InternalProfile) []*domain.BehaviorPattern {
	clusters := e.Discover(users)
	out := make([]*domain.BehaviorPattern, len(clusters))
	for i, c := range clusters {
		out[i] = c.Pattern
	}
	return out
}

// Discover is DiscoverPatterns with cluster membership attached.
func (e *Engine) Discover(users []*domain.InternalProfile) []Cluster {
	if len(users) < e.k {
		return []Cluster{}
	}

	now := e.now()
	raw := make([][]float64, len(users))
	vectors := make([][]float64, len(users))
	for i, u := range users {
		raw[i] = FeatureVector(u, now)
		vectors[i] = append([]float64(nil), raw[i]...)
	}
	Normalize(vectors)

	labels, centroids := e.clusterer.Fit(vectors, e.k)

	clusters := make([]Cluster, 0, e.k)
	for c := 0; c < e.k; c++ {
		var members []*domain.InternalProfile
		var memberRaw, memberVec [][]float64
		for i, l := range labels {
			if l == c {
				members = append(members, users[i])
				memberRaw = append(memberRaw, raw[i])
				memberVec = append(memberVec, vectors[i])
			}
		}
		if len(members) == 0 {
			continue
		}

		p := describe(c, members, memberRaw)
		if c < len(centroids) {
			p.Strength = cohesion(memberVec, centroids[c])
		}
		p.DiscoveredAt = now.UTC()
		clusters = append(clusters, Cluster{Pattern: p, Members: members})
	}
	return clusters
}

// describe builds the human-readable pattern of one cluster.
func describe(id int, members []*domain.InternalProfile, raw [][]float64) *domain.BehaviorPattern {
	n := float64(len(members))

	var sums [domain.NumCapabilityDimensions]float64
	var seen [domain.NumCapabilityDimensions]bool
	for _, u := range members {
		for d, est := range u.Capabilities {
			if est != nil {
				sums[d] += est.Mean
				seen[d] = true
			}
		}
	}

	p := &domain.BehaviorPattern{
		ID:                fmt.Sprintf("cluster_%d", id),
		Name:              fmt.Sprintf("Pattern %d", id),
		Description:       "General activity pattern",
		CapabilityProfile: map[domain.CapabilityDimension]float64{},
		TemporalSignature: map[string]float64{},
		MemberCount:       len(members),
		Status:            domain.PatternCandidate,
	}

	dominant := -1
	for d := range sums {
		if seen[d] && (dominant < 0 || sums[d] > sums[dominant]) {
			dominant = d
		}
	}
	if dominant >= 0 {
		dim := domain.CapabilityDimension(dominant)
		p.Description = fmt.Sprintf("Users who are strong in %s", dim)
		p.CapabilityProfile[dim] = sums[dominant] / n
	}

	for d := range sums {
		if seen[d] && sums[d]/n >= highCapability {
			p.CharacteristicBehaviors = append(p.CharacteristicBehaviors, "high_"+domain.CapabilityDimension(d).String())
		}
	}

	for j, name := range activityFeatureNames {
		col := make([]float64, len(raw))
		for i := range raw {
			col[i] = raw[i][domain.NumCapabilityDimensions+j]
		}
		p.TemporalSignature[name] = stats.Mean(col)
	}

	p.Consistency = consistency(members)
	p.TriggeringContexts = triggeringContexts(members)
	return p
}

// cohesion maps the mean member-to-centroid distance to (0, 1].
func cohesion(vectors [][]float64, centroid []float64) float64 {
	if len(vectors) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range vectors {
		total += math.Sqrt(sqDist(v, centroid))
	}
	return 1 / (1 + total/float64(len(vectors)))
}

// consistency is the mean engagement stability of members with enough history.
func consistency(members []*domain.InternalProfile) float64 {
	var scores []float64
	for _, u := range members {
		if s, ok := stats.EngagementStability(u.SortedHistory()); ok {
			scores = append(scores, s)
		}
	}
	return stats.Mean(scores)
}

// triggeringContexts lists the most frequent activity domains of the members.
func triggeringContexts(members []*domain.InternalProfile) []domain.ActivityDomain {
	counts := make(map[domain.ActivityDomain]int)
	for _, u := range members {
		for _, ev := range u.ActivityHistory {
			counts[ev.Domain]++
		}
	}

	order := make(map[domain.ActivityDomain]int, len(domain.ActivityDomains))
	for i, d := range domain.ActivityDomains {
		order[d] = i
	}

	domains := make([]domain.ActivityDomain, 0, len(counts))
	for d := range counts {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		if counts[domains[i]] != counts[domains[j]] {
			return counts[domains[i]] > counts[domains[j]]
		}
		oi, iok := order[domains[i]]
		oj, jok := order[domains[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return domains[i] < domains[j]
	})

	if len(domains) > maxTriggeringContexts {
		domains = domains[:maxTriggeringContexts]
	}
	return domains
}
