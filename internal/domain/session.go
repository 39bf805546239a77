package domain

import (
	"strings"
	"time"
)

// SessionState represents the lifecycle state of a trial session
type SessionState string

const (
	SessionStateIdle    SessionState = "idle"
	SessionStateRunning SessionState = "running"
)

// TickStatus is the result of a periodic tick
type TickStatus struct {
	Running   bool
	Remaining time.Duration
	Live      [zoneCount]time.Duration
	Active    *Zone
	// Report is set when the tick expired the trial
	Report *Report
}

// LiveTime returns the live time of z carried by the tick
func (t TickStatus) LiveTime(z Zone) time.Duration {
	if !z.Valid() {
		return 0
	}
	return t.Live[z]
}

// Session tracks one open field trial: which zone is currently held and
// how long each zone has been occupied. Every operation takes the current
// instant explicitly; Session owns no clock or timer. It is not safe for
// concurrent use.
type Session struct {
	subjectID string
	planned   time.Duration
	startedAt time.Time
	running   bool

	accumulated [zoneCount]time.Duration
	active      *Zone
	pressedAt   time.Time

	lastReport *Report
}

// NewSession creates an idle session
func NewSession() *Session {
	return &Session{}
}

// Start begins a new trial for subjectID lasting durationSeconds
func (s *Session) Start(subjectID string, durationSeconds int, now time.Time) error {
	if s.running {
		return ErrSessionRunning
	}

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return &ValidationError{Field: "subject id", Reason: "must not be empty"}
	}
	if durationSeconds <= 0 {
		return &ValidationError{Field: "duration", Reason: "must be a positive number of seconds"}
	}

	s.subjectID = subjectID
	s.planned = time.Duration(durationSeconds) * time.Second
	s.startedAt = now
	s.running = true
	s.accumulated = [zoneCount]time.Duration{}
	s.active = nil
	s.pressedAt = time.Time{}
	s.lastReport = nil

	return nil
}

// Press marks zone as occupied, releasing any other held zone first.
// Returns false when nothing changed.
func (s *Session) Press(zone Zone, now time.Time) bool {
	if !s.running || !zone.Valid() {
		return false
	}
	if s.active != nil && *s.active == zone {
		return false
	}
	if s.active != nil {
		s.Release(*s.active, now)
	}

	z := zone
	s.active = &z
	s.pressedAt = now
	return true
}

// Release stops timing zone and credits the held time to it.
// Returns false when zone was not held.
func (s *Session) Release(zone Zone, now time.Time) bool {
	if !s.running || s.active == nil || *s.active != zone {
		return false
	}

	s.accumulated[zone] += nonNegative(now.Sub(s.pressedAt))
	s.active = nil
	s.pressedAt = time.Time{}
	return true
}

// Tick recomputes the remaining time. When the planned duration has
// elapsed the trial is stopped and the returned status carries the
// finalized report.
func (s *Session) Tick(now time.Time) TickStatus {
	if !s.running {
		return TickStatus{}
	}

	remaining := s.Remaining(now)
	if remaining <= 0 {
		report, _ := s.stop(StopReasonExpired, now)
		return TickStatus{
			Live:   s.accumulated,
			Report: report,
		}
	}

	status := TickStatus{
		Running:   true,
		Remaining: remaining,
		Live:      s.Live(now),
	}
	if s.active != nil {
		z := *s.active
		status.Active = &z
	}
	return status
}

// Stop ends the trial. Returns false when no trial was running.
func (s *Session) Stop(manual bool, now time.Time) (*Report, bool) {
	reason := StopReasonManual
	if !manual {
		reason = StopReasonExpired
	}
	return s.stop(reason, now)
}

func (s *Session) stop(reason StopReason, now time.Time) (*Report, bool) {
	if !s.running {
		return nil, false
	}

	// an expired trial ends at its deadline even when the tick arrives late
	end := now
	if deadline := s.startedAt.Add(s.planned); reason == StopReasonExpired && end.After(deadline) {
		end = deadline
	}

	if s.active != nil {
		s.Release(*s.active, end)
	}

	effective := s.elapsed(end)

	s.running = false
	s.lastReport = newReport(s.subjectID, now, s.planned, effective, reason, s.accumulated)
	return s.lastReport, true
}

// Snapshot returns a provisional report while running, or the last
// finalized report when idle
func (s *Session) Snapshot(now time.Time) (*Report, error) {
	if s.running {
		return newReport(s.subjectID, now, s.planned, s.elapsed(now), StopReasonProvisional, s.Live(now)), nil
	}
	if s.lastReport == nil {
		return nil, ErrNoReport
	}
	return s.lastReport, nil
}

// Remaining returns the time left in the trial, never negative
func (s *Session) Remaining(now time.Time) time.Duration {
	if !s.running {
		return 0
	}
	return nonNegative(s.planned - s.elapsed(now))
}

// Live returns accumulated time per zone plus any press in progress
func (s *Session) Live(now time.Time) [zoneCount]time.Duration {
	live := s.accumulated
	if s.running && s.active != nil {
		live[*s.active] += nonNegative(now.Sub(s.pressedAt))
	}
	return live
}

// State returns the lifecycle state
func (s *Session) State() SessionState {
	if s.running {
		return SessionStateRunning
	}
	return SessionStateIdle
}

// Running reports whether a trial is in progress
func (s *Session) Running() bool {
	return s.running
}

// SubjectID returns the subject of the current or last trial
func (s *Session) SubjectID() string {
	return s.subjectID
}

// PlannedDuration returns the planned length of the current or last trial
func (s *Session) PlannedDuration() time.Duration {
	return s.planned
}

// StartedAt returns when the current or last trial started
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// ActiveZone returns the zone currently held, if any
func (s *Session) ActiveZone() (Zone, bool) {
	if s.active == nil {
		return 0, false
	}
	return *s.active, true
}

// Accumulated returns the time credited to zone by completed presses
func (s *Session) Accumulated(zone Zone) time.Duration {
	if !zone.Valid() {
		return 0
	}
	return s.accumulated[zone]
}

// LastReport returns the report produced by the last stop, or nil
func (s *Session) LastReport() *Report {
	return s.lastReport
}

func (s *Session) elapsed(now time.Time) time.Duration {
	return nonNegative(now.Sub(s.startedAt))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
