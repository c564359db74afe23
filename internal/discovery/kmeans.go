package discovery

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Clusterer partitions points into k groups.
// labels[i] is the cluster of points[i]; centroids has k rows.
type Clusterer interface {
	Fit(points [][]float64, k int) (labels []int, centroids [][]float64)
}

// KMeans is a seeded Lloyd's k-means with k-means++ initialisation.
// The same seed and input always produce the same clustering.
type KMeans struct {
	Seed    uint64
	Inits   int
	MaxIter int
}

// NewKMeans validates the parameters and returns a clusterer.
func NewKMeans(seed uint64, inits, maxIter int) (*KMeans, error) {
	if inits < 1 {
		return nil, fmt.Errorf("%w: inits must be >= 1, got %d", ErrInvalidConfig, inits)
	}
	if maxIter < 1 {
		return nil, fmt.Errorf("%w: max iterations must be >= 1, got %d", ErrInvalidConfig, maxIter)
	}
	return &KMeans{Seed: seed, Inits: inits, MaxIter: maxIter}, nil
}

// Fit runs Inits independent initialisations and keeps the lowest inertia.
// Ties go to the earliest initialisation.
func (km *KMeans) Fit(points [][]float64, k int) ([]int, [][]float64) {
	if len(points) == 0 || k < 1 {
		return nil, nil
	}
	if k > len(points) {
		k = len(points)
	}

	var (
		bestLabels    []int
		bestCentroids [][]float64
		bestInertia   = math.Inf(1)
	)
	for run := 0; run < km.Inits; run++ {
		rng := rand.New(rand.NewPCG(km.Seed, uint64(run)))
		labels, centroids, inertia := km.lloyd(points, seedCentroids(points, k, rng))
		if inertia < bestInertia {
			bestLabels, bestCentroids, bestInertia = labels, centroids, inertia
		}
	}
	return bestLabels, bestCentroids
}

// lloyd alternates assignment and update steps until assignments settle.
func (km *KMeans) lloyd(points, centroids [][]float64) ([]int, [][]float64, float64) {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < km.MaxIter; iter++ {
		changed := false
		for i, p := range points {
			c, _ := nearest(p, centroids)
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		updateCentroids(points, labels, centroids)
	}

	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return labels, centroids, inertia
}

// seedCentroids picks k starting centroids with k-means++ weighting.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			_, d := nearest(p, centroids)
			dist[i] = d
			total += d
		}

		// All remaining points coincide with a centroid.
		if total == 0 {
			centroids = append(centroids, clone(points[rng.IntN(len(points))]))
			continue
		}

		target := rng.Float64() * total
		idx := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, clone(points[idx]))
	}
	return centroids
}

// updateCentroids moves each centroid to the mean of its members.
// A centroid with no members stays where it is.
func updateCentroids(points [][]float64, labels []int, centroids [][]float64) {
	dims := len(points[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for j, v := range p {
			sums[c][j] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

// nearest returns the index of the closest centroid and the squared distance.
// Ties go to the lower index.
func nearest(p []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
