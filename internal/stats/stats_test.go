package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Loofy147/Lsp/internal/domain"
)

func TestMeanAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), StdDev([]float64{1, 2, 3, 4}), 1e-12)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{0, 0, 0}))
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{5, 5, 5}))
	assert.InDelta(t, 0.5, CoefficientOfVariation([]float64{1, 3}), 1e-12)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 1.0, Clamp01(2))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 0.4, Clamp01(0.4))
}

func TestEngagementStability(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(levels ...float64) []domain.ActivityEvent {
		out := make([]domain.ActivityEvent, len(levels))
		for i, l := range levels {
			out[i] = domain.ActivityEvent{Timestamp: base.Add(time.Duration(i) * time.Hour), EngagementLevel: l}
		}
		return out
	}

	_, ok := EngagementStability(mk(0.5))
	assert.False(t, ok)

	s, ok := EngagementStability(mk(0.5, 0.5, 0.5, 0.5))
	assert.True(t, ok)
	assert.InDelta(t, 1.0, s, 1e-12)

	s, _ = EngagementStability(mk(0.2, 0.2, 0.8, 0.8))
	assert.InDelta(t, 0.4, s, 1e-12)
}
