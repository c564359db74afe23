package capability

import (
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// RecordProgress appends a progress point to the user's curve for d and
// refreshes the curve's velocity and consistency.
func RecordProgress(p *domain.InternalProfile, d domain.ActivityDomain, at time.Time, signal float64) *domain.LearningCurve {
	if p.LearningCurves == nil {
		p.LearningCurves = make(map[domain.ActivityDomain]*domain.LearningCurve)
	}
	c, ok := p.LearningCurves[d]
	if !ok {
		c = &domain.LearningCurve{Domain: d, StartDate: at}
		p.LearningCurves[d] = c
	}
	if at.Before(c.StartDate) {
		c.StartDate = at
	}

	c.ProgressPoints = append(c.ProgressPoints, domain.ProgressPoint{Time: at, Signal: signal})
	c.LearningVelocity = learningVelocity(c.ProgressPoints)

	signals := make([]float64, len(c.ProgressPoints))
	for i, pt := range c.ProgressPoints {
		signals[i] = pt.Signal
	}
	c.ConsistencyScore = stats.Clamp01(1 - stats.StdDev(signals))
	return c
}

// learningVelocity is the least-squares slope of signal over time, per day.
func learningVelocity(points []domain.ProgressPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	origin := points[0].Time
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, pt := range points {
		xs[i] = pt.Time.Sub(origin).Hours() / 24
		ys[i] = pt.Signal
	}

	mx, my := stats.Mean(xs), stats.Mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0
	}
	return num / den
}
