package domain

import "time"

// MinEffectiveDuration is the floor applied to the effective duration
// before computing percentages
const MinEffectiveDuration = time.Millisecond

// StopReason describes how a report was produced
type StopReason string

const (
	StopReasonManual      StopReason = "manual"
	StopReasonExpired     StopReason = "expired"
	StopReasonProvisional StopReason = "provisional"
)

// ZoneResult holds the accumulated time of one zone in a report
type ZoneResult struct {
	Zone    Zone
	Time    time.Duration
	Percent float64
}

// Seconds returns the accumulated time in seconds
func (r ZoneResult) Seconds() float64 {
	return r.Time.Seconds()
}

// Report is an immutable snapshot of a trial's results
type Report struct {
	SubjectID         string
	GeneratedAt       time.Time
	PlannedDuration   time.Duration
	EffectiveDuration time.Duration
	Reason            StopReason
	Zones             []ZoneResult
}

// newReport builds a report with zone percentages computed against the
// effective duration
func newReport(subjectID string, generatedAt time.Time, planned, effective time.Duration, reason StopReason, times [zoneCount]time.Duration) *Report {
	if effective < MinEffectiveDuration {
		effective = MinEffectiveDuration
	}

	zones := make([]ZoneResult, 0, zoneCount)
	for _, z := range Zones() {
		zones = append(zones, ZoneResult{
			Zone:    z,
			Time:    times[z],
			Percent: times[z].Seconds() / effective.Seconds() * 100,
		})
	}

	return &Report{
		SubjectID:         subjectID,
		GeneratedAt:       generatedAt,
		PlannedDuration:   planned,
		EffectiveDuration: effective,
		Reason:            reason,
		Zones:             zones,
	}
}

// Zone returns the result for z
func (r *Report) Zone(z Zone) ZoneResult {
	for _, zr := range r.Zones {
		if zr.Zone == z {
			return zr
		}
	}
	return ZoneResult{Zone: z}
}

// Total returns the time accumulated across all zones
func (r *Report) Total() time.Duration {
	var total time.Duration
	for _, zr := range r.Zones {
		total += zr.Time
	}
	return total
}

// Final reports whether the report was produced by stopping the trial
func (r *Report) Final() bool {
	return r.Reason != StopReasonProvisional
}
