package discovery

import (
	"math"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// Positions of the activity features after the capability block.
const (
	featAvgEngagement = domain.NumCapabilityDimensions + iota
	featActivityCount
	featDaysSinceLast
	featActivitiesPerDay

	numFeatures
)

// inactiveDays is the recency assigned to users with no history.
const inactiveDays = 365

// normEpsilon keeps constant columns finite during normalisation.
const normEpsilon = 1e-6

// activityFeatureNames label the activity features in pattern signatures.
var activityFeatureNames = [...]string{
	"avg_engagement",
	"activity_count",
	"days_since_last_activity",
	"activities_per_day",
}

// FeatureVector builds the raw behaviour vector of a user: one mean per
// capability dimension (0 when untracked) followed by average engagement,
// activity count, whole days since the last activity and activities per day.
func FeatureVector(u *domain.InternalProfile, now time.Time) []float64 {
	v := make([]float64, numFeatures)
	for d := 0; d < domain.NumCapabilityDimensions; d++ {
		v[d] = u.Capabilities.Mean(domain.CapabilityDimension(d))
	}

	if len(u.ActivityHistory) == 0 {
		v[featDaysSinceLast] = inactiveDays
		return v
	}

	history := u.SortedHistory()
	first, last := history[0].Timestamp, history[len(history)-1].Timestamp
	count := float64(len(history))

	v[featAvgEngagement] = stats.Mean(stats.Engagement(history))
	v[featActivityCount] = count
	v[featDaysSinceLast] = wholeDays(now.Sub(last))
	v[featActivitiesPerDay] = count / (wholeDays(last.Sub(first)) + 1)
	return v
}

func wholeDays(d time.Duration) float64 {
	return math.Floor(d.Hours() / 24)
}

// Normalize z-scores every column in place using the population standard
// deviation plus a small epsilon.
func Normalize(vectors [][]float64) [][]float64 {
	if len(vectors) == 0 {
		return vectors
	}

	cols := len(vectors[0])
	col := make([]float64, len(vectors))
	for j := 0; j < cols; j++ {
		for i := range vectors {
			col[i] = vectors[i][j]
		}
		mean, std := stats.Mean(col), stats.StdDev(col)
		for i := range vectors {
			vectors[i][j] = (vectors[i][j] - mean) / (std + normEpsilon)
		}
	}
	return vectors
}
