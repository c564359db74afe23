package fraud

import (
	"fmt"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/stats"
)

// Fixed severities per signal type.
const (
	severityVelocity      = 0.7
	severityRegularity    = 0.6
	severityBiometric     = 0.5
	severityTemporal      = 0.4
	severityDeviceSharing = 0.8
	severityNewDevice     = 0.3
)

// checkVelocity flags an activity that follows the previous one faster than
// half the minimum plausible duration.
func (d *Detector) checkVelocity(userID string, activity *domain.ActivityEvent, now time.Time) *domain.FraudSignal {
	p, ok := d.store.ActivityProfile(userID)
	if !ok || p.LastActivityTime.IsZero() {
		return nil
	}

	elapsed := activity.Timestamp.Sub(p.LastActivityTime)
	if elapsed >= d.cfg.MinActivityDuration/2 {
		return nil
	}

	return &domain.FraudSignal{
		Type:        domain.SignalVelocityViolation,
		Severity:    severityVelocity,
		Description: fmt.Sprintf("Activity completed in %.3fs", elapsed.Seconds()),
		Evidence:    map[string]any{"elapsed_seconds": elapsed.Seconds()},
		Timestamp:   now,
	}
}

// checkRegularity flags machine-like inter-activity timing.
func (d *Detector) checkRegularity(userID string, now time.Time) *domain.FraudSignal {
	p, ok := d.store.ActivityProfile(userID)
	if !ok || len(p.Intervals) < d.cfg.RegularityMinIntervals {
		return nil
	}

	intervals := p.Intervals
	if n := len(intervals); n > d.cfg.RegularityWindow {
		intervals = intervals[n-d.cfg.RegularityWindow:]
	}

	cv := stats.CoefficientOfVariation(intervals)
	if cv >= d.cfg.RegularityCVThreshold {
		return nil
	}

	return &domain.FraudSignal{
		Type:        domain.SignalPatternTooRegular,
		Severity:    severityRegularity,
		Description: fmt.Sprintf("Activity timing too regular (CV=%.3f)", cv),
		Evidence:    map[string]any{"cv": cv, "intervals": len(intervals)},
		Timestamp:   now,
	}
}

// checkTemporal flags activity at an hour the user almost never uses.
func (d *Detector) checkTemporal(userID string, activity *domain.ActivityEvent, now time.Time) *domain.FraudSignal {
	p, ok := d.store.ActivityProfile(userID)
	if !ok || len(p.ActivityTimes) < d.cfg.TemporalMinSamples {
		return nil
	}

	hour := activity.Timestamp.UTC().Hour()
	freq := p.HourDistribution[hour]
	if freq > d.cfg.TypicalHourFraction || freq >= d.cfg.RareHourFraction {
		return nil
	}

	return &domain.FraudSignal{
		Type:        domain.SignalTemporalAnomaly,
		Severity:    severityTemporal,
		Description: fmt.Sprintf("Activity at unusual hour %d:00", hour),
		Evidence:    map[string]any{"hour": hour, "frequency": freq},
		Timestamp:   now,
	}
}

// checkDevice compares the request fingerprint with the user's known devices.
// The fingerprint is recorded whatever the outcome.
func (d *Detector) checkDevice(userID string, rc *domain.RequestContext, now time.Time) *domain.FraudSignal {
	fp := Fingerprint(rc)
	defer d.store.AddDevice(userID, fp)

	if d.store.HasDevice(userID, fp) {
		return nil
	}

	// The requesting user counts towards the accounts on the device.
	if accounts := d.store.OtherUsersOnDevice(userID, fp) + 1; accounts > d.cfg.DeviceSharingUsers {
		return &domain.FraudSignal{
			Type:        domain.SignalDeviceSharing,
			Severity:    severityDeviceSharing,
			Description: fmt.Sprintf("Device shared by %d accounts", accounts),
			Evidence:    map[string]any{"fingerprint": fp, "accounts": accounts},
			Timestamp:   now,
		}
	}

	if d.store.DeviceCount(userID) > 0 {
		return &domain.FraudSignal{
			Type:        domain.SignalNewDevice,
			Severity:    severityNewDevice,
			Description: "Activity from new device",
			Evidence:    map[string]any{"fingerprint": fp},
			Timestamp:   now,
		}
	}

	return nil
}
