package fraud

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

const (
	anomalyMouseStraight = "mouse_too_straight"
	anomalyTypingRegular = "typing_too_regular"
)

// checkBiometrics looks for scripted pointer paths and metronomic typing.
func (d *Detector) checkBiometrics(rc *domain.RequestContext, now time.Time) *domain.FraudSignal {
	var anomalies []string
	evidence := map[string]any{}

	if len(rc.MouseMovements) >= d.cfg.MouseMinPoints {
		straightness := PathStraightness(rc.MouseMovements)
		evidence["straightness"] = straightness
		if straightness > d.cfg.MouseStraightnessMax {
			anomalies = append(anomalies, anomalyMouseStraight)
		}
	}

	if rc.TypingPattern != nil && len(rc.TypingPattern.KeyIntervals) >= d.cfg.TypingMinIntervals {
		keys := rc.TypingPattern.KeyIntervals
		if stats.Mean(keys) > 0 {
			cv := stats.CoefficientOfVariation(keys)
			evidence["typing_cv"] = cv
			if cv < d.cfg.TypingCVThreshold {
				anomalies = append(anomalies, anomalyTypingRegular)
			}
		}
	}

	if len(anomalies) == 0 {
		return nil
	}
	evidence["anomalies"] = anomalies

	return &domain.FraudSignal{
		Type:        domain.SignalBiometricAnomaly,
		Severity:    severityBiometric,
		Description: fmt.Sprintf("Unusual behavioral biometrics: %s", strings.Join(anomalies, ", ")),
		Evidence:    evidence,
		Timestamp:   now,
	}
}

// PathStraightness returns the ratio of direct distance to travelled path.
// Paths with fewer than three points, or no movement, score 0.5.
func PathStraightness(points []domain.Point) float64 {
	if len(points) < 3 {
		return 0.5
	}

	pathLength := 0.0
	for i := 1; i < len(points); i++ {
		pathLength += math.Hypot(points[i].X-points[i-1].X, points[i].Y-points[i-1].Y)
	}
	if pathLength == 0 {
		return 0.5
	}

	first, last := points[0], points[len(points)-1]
	return math.Hypot(last.X-first.X, last.Y-first.Y) / pathLength
}
