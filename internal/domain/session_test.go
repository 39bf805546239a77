package domain_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebk/openfield/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func startedSession(t *testing.T, seconds int) *domain.Session {
	t.Helper()
	s := domain.NewSession()
	require.NoError(t, s.Start("rat1", seconds, t0))
	return s
}

func TestSession_Start(t *testing.T) {
	tests := []struct {
		name      string
		subjectID string
		seconds   int
		wantField string
	}{
		{name: "valid", subjectID: "rat1", seconds: 300},
		{name: "trimmed id", subjectID: "  rat1 ", seconds: 10},
		{name: "empty id", subjectID: "", seconds: 300, wantField: "subject id"},
		{name: "blank id", subjectID: "   ", seconds: 300, wantField: "subject id"},
		{name: "zero duration", subjectID: "rat1", seconds: 0, wantField: "duration"},
		{name: "negative duration", subjectID: "rat1", seconds: -5, wantField: "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := domain.NewSession()
			err := s.Start(tt.subjectID, tt.seconds, t0)

			if tt.wantField != "" {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				assert.Equal(t, domain.SessionStateIdle, s.State())
				assert.False(t, s.Running())
				assert.Empty(t, s.SubjectID())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.SessionStateRunning, s.State())
			assert.Equal(t, "rat1", s.SubjectID())
			assert.Equal(t, time.Duration(tt.seconds)*time.Second, s.PlannedDuration())
			assert.Equal(t, t0, s.StartedAt())
		})
	}
}

func TestSession_StartWhileRunning(t *testing.T) {
	s := startedSession(t, 10)
	s.Press(domain.ZoneCorner, at(0))

	err := s.Start("rat2", 20, at(1))
	assert.ErrorIs(t, err, domain.ErrSessionRunning)
	assert.Equal(t, "rat1", s.SubjectID())
	zone, ok := s.ActiveZone()
	assert.True(t, ok)
	assert.Equal(t, domain.ZoneCorner, zone)
}

func TestSession_StartResetsPreviousTrial(t *testing.T) {
	s := startedSession(t, 10)
	s.Press(domain.ZoneCenter, at(0))
	_, ok := s.Stop(true, at(4))
	require.True(t, ok)
	require.NotNil(t, s.LastReport())

	require.NoError(t, s.Start("rat2", 30, at(10)))
	for _, z := range domain.Zones() {
		assert.Zero(t, s.Accumulated(z), z.String())
	}
	assert.Nil(t, s.LastReport())
	_, ok = s.ActiveZone()
	assert.False(t, ok)
}

func TestSession_PressReleasesOtherZone(t *testing.T) {
	s := startedSession(t, 60)

	assert.True(t, s.Press(domain.ZoneCorner, at(0)))
	assert.True(t, s.Press(domain.ZoneLateral, at(2)))

	assert.Equal(t, 2*time.Second, s.Accumulated(domain.ZoneCorner))
	zone, ok := s.ActiveZone()
	require.True(t, ok)
	assert.Equal(t, domain.ZoneLateral, zone)
}

func TestSession_Idempotence(t *testing.T) {
	s := startedSession(t, 60)

	require.True(t, s.Press(domain.ZoneCenter, at(1)))
	assert.False(t, s.Press(domain.ZoneCenter, at(3)), "pressing held zone is a no-op")
	assert.False(t, s.Release(domain.ZoneCorner, at(4)), "releasing inactive zone is a no-op")

	require.True(t, s.Release(domain.ZoneCenter, at(5)))
	assert.Equal(t, 4*time.Second, s.Accumulated(domain.ZoneCenter), "press instant kept from first press")
	assert.False(t, s.Release(domain.ZoneCenter, at(6)))
	assert.Equal(t, 4*time.Second, s.Accumulated(domain.ZoneCenter))
}

func TestSession_IdleCallsAreNoOps(t *testing.T) {
	s := domain.NewSession()

	assert.False(t, s.Press(domain.ZoneCorner, at(0)))
	assert.False(t, s.Release(domain.ZoneCorner, at(1)))
	assert.Equal(t, domain.TickStatus{}, s.Tick(at(2)))
	report, ok := s.Stop(true, at(3))
	assert.False(t, ok)
	assert.Nil(t, report)
	assert.Equal(t, domain.SessionStateIdle, s.State())
}

func TestSession_StopTwice(t *testing.T) {
	s := startedSession(t, 60)
	first, ok := s.Stop(true, at(5))
	require.True(t, ok)

	second, ok := s.Stop(true, at(8))
	assert.False(t, ok)
	assert.Nil(t, second)
	assert.Same(t, first, s.LastReport())
}

func TestSession_StopReleasesActiveZone(t *testing.T) {
	s := startedSession(t, 60)
	s.Press(domain.ZoneLateral, at(1))

	report, ok := s.Stop(true, at(4))
	require.True(t, ok)

	_, active := s.ActiveZone()
	assert.False(t, active)
	assert.Equal(t, 3*time.Second, report.Zone(domain.ZoneLateral).Time)

	assert.False(t, s.Press(domain.ZoneCorner, at(5)), "no zone may be pressed after stop")
	assert.Equal(t, 3*time.Second, s.Accumulated(domain.ZoneLateral), "accumulators frozen after stop")
}

func TestSession_StartThenStop(t *testing.T) {
	s := startedSession(t, 300)

	report, ok := s.Stop(true, t0)
	require.True(t, ok)

	assert.Equal(t, domain.MinEffectiveDuration, report.EffectiveDuration)
	for _, zr := range report.Zones {
		assert.Zero(t, zr.Time, zr.Zone.String())
		assert.Zero(t, zr.Percent, zr.Zone.String())
	}
}

func TestSession_Scenario(t *testing.T) {
	s := domain.NewSession()
	require.NoError(t, s.Start("rat1", 10, at(0)))

	s.Press(domain.ZoneCorner, at(0))
	s.Release(domain.ZoneCorner, at(3))
	s.Press(domain.ZoneCenter, at(3))

	status := s.Tick(at(8))
	require.True(t, status.Running)
	assert.Nil(t, status.Report)
	assert.Equal(t, 2*time.Second, status.Remaining)
	assert.Equal(t, 5*time.Second, status.LiveTime(domain.ZoneCenter))
	assert.Equal(t, 3*time.Second, status.LiveTime(domain.ZoneCorner))
	require.NotNil(t, status.Active)
	assert.Equal(t, domain.ZoneCenter, *status.Active)
	assert.Zero(t, s.Accumulated(domain.ZoneCenter), "tick must not mutate accumulators")

	report, ok := s.Stop(true, at(9))
	require.True(t, ok)

	assert.Equal(t, domain.StopReasonManual, report.Reason)
	assert.Equal(t, 9*time.Second, report.EffectiveDuration)
	assert.Equal(t, 10*time.Second, report.PlannedDuration)
	assert.InDelta(t, 3.0, report.Zone(domain.ZoneCorner).Seconds(), 1e-9)
	assert.InDelta(t, 33.33, report.Zone(domain.ZoneCorner).Percent, 0.01)
	assert.InDelta(t, 6.0, report.Zone(domain.ZoneCenter).Seconds(), 1e-9)
	assert.InDelta(t, 66.67, report.Zone(domain.ZoneCenter).Percent, 0.01)
	assert.Zero(t, report.Zone(domain.ZoneLateral).Seconds())
	assert.Zero(t, report.Zone(domain.ZoneLateral).Percent)
	assert.Equal(t, 9*time.Second, report.Total())
}

func TestSession_TickExpiresAndClamps(t *testing.T) {
	s := startedSession(t, 10)
	s.Press(domain.ZoneLateral, at(4))

	status := s.Tick(at(10.15))

	assert.False(t, status.Running)
	require.NotNil(t, status.Report)
	assert.Equal(t, domain.StopReasonExpired, status.Report.Reason)
	assert.Equal(t, 10*time.Second, status.Report.EffectiveDuration, "effective duration clamped to planned")
	assert.False(t, s.Running())
	assert.Same(t, status.Report, s.LastReport())

	assert.Equal(t, domain.TickStatus{}, s.Tick(at(11)), "tick after expiry is a no-op")
}

func TestSession_LateExpiryCreditsHeldZoneUpToDeadline(t *testing.T) {
	s := startedSession(t, 10)
	s.Press(domain.ZoneCorner, at(0))

	status := s.Tick(at(10.2))

	require.NotNil(t, status.Report)
	report := status.Report
	assert.Equal(t, 10*time.Second, report.EffectiveDuration)
	assert.Equal(t, 10*time.Second, report.Zone(domain.ZoneCorner).Time)
	assert.InDelta(t, 100.0, report.Zone(domain.ZoneCorner).Percent, 1e-9)
	assert.LessOrEqual(t, report.Total(), report.EffectiveDuration)
}

func TestSession_ManualStopAfterPlannedIsNotClamped(t *testing.T) {
	s := startedSession(t, 10)

	report, ok := s.Stop(true, at(12))
	require.True(t, ok)
	assert.Equal(t, 12*time.Second, report.EffectiveDuration)
}

func TestSession_Snapshot(t *testing.T) {
	s := domain.NewSession()
	_, err := s.Snapshot(t0)
	assert.ErrorIs(t, err, domain.ErrNoReport)

	require.NoError(t, s.Start("rat1", 60, t0))
	s.Press(domain.ZoneCorner, at(0))

	provisional, err := s.Snapshot(at(5))
	require.NoError(t, err)
	assert.False(t, provisional.Final())
	assert.Equal(t, 5*time.Second, provisional.EffectiveDuration)
	assert.Equal(t, 5*time.Second, provisional.Zone(domain.ZoneCorner).Time)
	assert.InDelta(t, 100.0, provisional.Zone(domain.ZoneCorner).Percent, 1e-9)
	assert.Zero(t, s.Accumulated(domain.ZoneCorner), "snapshot must not mutate accumulators")

	final, _ := s.Stop(true, at(6))
	got, err := s.Snapshot(at(30))
	require.NoError(t, err)
	assert.Same(t, final, got)
}

func TestSession_RemainingNeverNegative(t *testing.T) {
	s := startedSession(t, 5)
	assert.Equal(t, 5*time.Second, s.Remaining(t0))
	assert.Equal(t, time.Duration(0), s.Remaining(at(7)))
}

func TestSession_ReleaseBeforePressInstant(t *testing.T) {
	s := startedSession(t, 60)
	s.Press(domain.ZoneCorner, at(5))
	s.Release(domain.ZoneCorner, at(4))
	assert.Zero(t, s.Accumulated(domain.ZoneCorner))
}

// Random press/release/tick sequences must keep at most one zone active
// and never decrease any accumulator.
func TestSession_RandomSequenceInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	s := startedSession(t, 1000)

	now := t0
	prev := map[domain.Zone]time.Duration{}
	for i := 0; i < 2000 && s.Running(); i++ {
		now = now.Add(time.Duration(r.Intn(500)) * time.Millisecond)
		zone := domain.Zones()[r.Intn(3)]

		switch r.Intn(3) {
		case 0:
			s.Press(zone, now)
		case 1:
			s.Release(zone, now)
		case 2:
			before := map[domain.Zone]time.Duration{}
			for _, z := range domain.Zones() {
				before[z] = s.Accumulated(z)
			}
			status := s.Tick(now)
			if status.Running {
				for _, z := range domain.Zones() {
					require.Equal(t, before[z], s.Accumulated(z), "tick mutated %s", z)
				}
			}
		}

		if _, ok := s.ActiveZone(); ok {
			require.True(t, s.Running(), "zone active while idle")
		}
		live := s.Live(now)
		held := 0
		for _, z := range domain.Zones() {
			if live[z] > s.Accumulated(z) {
				held++
			}
			require.GreaterOrEqual(t, s.Accumulated(z), prev[z], "accumulator for %s decreased", z)
			prev[z] = s.Accumulated(z)
		}
		require.LessOrEqual(t, held, 1, "more than one zone accruing time")
	}
}

func TestParseZone(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Zone
		err  error
	}{
		{in: "corner", want: domain.ZoneCorner},
		{in: "C", want: domain.ZoneCorner},
		{in: "canto", want: domain.ZoneCorner},
		{in: "Lateral", want: domain.ZoneLateral},
		{in: "l", want: domain.ZoneLateral},
		{in: " center ", want: domain.ZoneCenter},
		{in: "centro", want: domain.ZoneCenter},
		{in: "m", want: domain.ZoneCenter},
		{in: "roof", err: domain.ErrUnknownZone},
		{in: "", err: domain.ErrUnknownZone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := domain.ParseZone(tt.in)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
