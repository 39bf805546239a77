package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glebk/openfield/internal/domain"
	"github.com/glebk/openfield/internal/export"
)

// DefaultTickInterval refreshes the trial at roughly 5Hz
const DefaultTickInterval = 200 * time.Millisecond

// Clock returns the current instant
type Clock func() time.Time

// Status is a point-in-time view of the trial for display
type Status struct {
	State     domain.SessionState
	RunID     string
	SubjectID string
	Planned   time.Duration
	Remaining time.Duration
	Live      map[domain.Zone]time.Duration
	Active    *domain.Zone
}

// TrialService owns the trial session and drives its periodic tick.
// All access to the session is serialized, so the console and the tick
// loop can call in from different goroutines.
type TrialService struct {
	mu       sync.Mutex
	session  *domain.Session
	exporter *export.Exporter
	logger   *zap.Logger
	clock    Clock
	interval time.Duration

	runID  string
	cancel context.CancelFunc
	done   chan struct{}
	loops  sync.WaitGroup

	tickListeners   []func(domain.TickStatus)
	finishListeners []func(*domain.Report)
}

// Option configures a TrialService
type Option func(*TrialService)

// WithClock overrides the time source
func WithClock(clock Clock) Option {
	return func(s *TrialService) {
		s.clock = clock
	}
}

// WithTickInterval overrides the tick interval
func WithTickInterval(d time.Duration) Option {
	return func(s *TrialService) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewTrialService creates a new TrialService
func NewTrialService(session *domain.Session, exporter *export.Exporter, logger *zap.Logger, opts ...Option) *TrialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TrialService{
		session:  session,
		exporter: exporter,
		logger:   logger,
		clock:    time.Now,
		interval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTick registers a listener called after every tick of a running trial
func (s *TrialService) OnTick(fn func(domain.TickStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickListeners = append(s.tickListeners, fn)
}

// OnFinish registers a listener called with the final report when a
// trial stops, manually or on expiry
func (s *TrialService) OnFinish(fn func(*domain.Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishListeners = append(s.finishListeners, fn)
}

// Start starts a new trial and its tick loop
func (s *TrialService) Start(ctx context.Context, subjectID string, durationSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if err := s.session.Start(subjectID, durationSeconds, now); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.logger.Info("Trial start rejected", zap.String("field", verr.Field), zap.String("reason", verr.Reason))
		}
		return fmt.Errorf("failed to start trial: %w", err)
	}

	s.runID = uuid.NewString()
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Trial started",
		zap.String("run_id", s.runID),
		zap.String("subject", s.session.SubjectID()),
		zap.Duration("planned", s.session.PlannedDuration()),
	)

	s.loops.Add(1)
	go s.tickLoop(loopCtx, s.done)

	return nil
}

// tickLoop ticks the trial until it stops or ctx is cancelled
func (s *TrialService) tickLoop(ctx context.Context, done chan struct{}) {
	defer s.loops.Done()
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.tick(ctx)
			if !status.Running {
				return
			}
		}
	}
}

// Tick advances the trial to the current instant, notifying listeners.
// The tick loop calls it; hosts with their own scheduler may too.
func (s *TrialService) Tick() domain.TickStatus {
	return s.tick(context.Background())
}

// tick is a no-op once ctx is done, so a loop cancelled by Stop never
// ticks a trial started after it
func (s *TrialService) tick(ctx context.Context) domain.TickStatus {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return domain.TickStatus{}
	}
	status := s.session.Tick(s.clock())
	tickListeners := append([]func(domain.TickStatus){}, s.tickListeners...)
	finishListeners := append([]func(*domain.Report){}, s.finishListeners...)
	if status.Report != nil {
		s.logFinished(status.Report)
		s.cancelLoop()
	}
	s.mu.Unlock()

	if status.Running {
		for _, fn := range tickListeners {
			fn(status)
		}
	}
	if status.Report != nil {
		for _, fn := range finishListeners {
			fn(status.Report)
		}
	}
	return status
}

// Press marks zone as occupied
func (s *TrialService) Press(zone domain.Zone) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Running() {
		s.logger.Debug("Press ignored, no trial running", zap.Stringer("zone", zone))
		return false
	}
	changed := s.session.Press(zone, s.clock())
	if changed {
		s.logger.Debug("Zone pressed", zap.String("run_id", s.runID), zap.Stringer("zone", zone))
	}
	return changed
}

// Release stops timing zone
func (s *TrialService) Release(zone domain.Zone) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.session.Release(zone, s.clock())
	if changed {
		s.logger.Debug("Zone released",
			zap.String("run_id", s.runID),
			zap.Stringer("zone", zone),
			zap.Duration("accumulated", s.session.Accumulated(zone)),
		)
	} else {
		s.logger.Debug("Release ignored", zap.Stringer("zone", zone), zap.Bool("running", s.session.Running()))
	}
	return changed
}

// ReleaseActive releases whichever zone is held
func (s *TrialService) ReleaseActive() (domain.Zone, bool) {
	s.mu.Lock()
	zone, ok := s.session.ActiveZone()
	s.mu.Unlock()

	if !ok {
		return 0, false
	}
	return zone, s.Release(zone)
}

// Stop ends the running trial and returns its report. Returns false if
// no trial was running.
func (s *TrialService) Stop(manual bool) (*domain.Report, bool) {
	s.mu.Lock()
	report, ok := s.session.Stop(manual, s.clock())
	finishListeners := append([]func(*domain.Report){}, s.finishListeners...)
	if ok {
		s.logFinished(report)
		s.cancelLoop()
	} else {
		s.logger.Debug("Stop ignored, no trial running")
	}
	s.mu.Unlock()

	if ok {
		for _, fn := range finishListeners {
			fn(report)
		}
	}
	return report, ok
}

// Snapshot returns a provisional report of the running trial, or the
// last final report
func (s *TrialService) Snapshot() (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Snapshot(s.clock())
}

// LastReport returns the last final report, or nil
func (s *TrialService) LastReport() *domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.LastReport()
}

// Status returns the current trial status
func (s *TrialService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	live := s.session.Live(now)
	status := Status{
		State:     s.session.State(),
		RunID:     s.runID,
		SubjectID: s.session.SubjectID(),
		Planned:   s.session.PlannedDuration(),
		Remaining: s.session.Remaining(now),
		Live:      make(map[domain.Zone]time.Duration, len(live)),
	}
	for _, z := range domain.Zones() {
		status.Live[z] = live[z]
	}
	if zone, ok := s.session.ActiveZone(); ok {
		status.Active = &zone
	}
	return status
}

// Export writes the last final report. Before any trial has stopped it
// returns domain.ErrNoReport.
func (s *TrialService) Export(path string, format export.Format) (*export.Result, error) {
	s.mu.Lock()
	report := s.session.LastReport()
	now := s.clock()
	runID := s.runID
	s.mu.Unlock()

	result, err := s.exporter.Export(report, path, format, now)
	if err != nil {
		s.logger.Warn("Report export failed", zap.String("run_id", runID), zap.Error(err))
		return result, err
	}

	s.logger.Info("Report exported",
		zap.String("run_id", runID),
		zap.String("path", result.Path),
		zap.String("format", string(format)),
	)
	return result, nil
}

// WriteChart writes the SVG pie of the last final report to path
func (s *TrialService) WriteChart(path string) (bool, error) {
	report := s.LastReport()
	if report == nil {
		return false, domain.ErrNoReport
	}
	return s.exporter.WriteChart(report, path)
}

// Close stops a running trial and waits for every tick loop to exit
func (s *TrialService) Close() {
	s.Stop(true)
	s.loops.Wait()
}

// cancelLoop stops the pending next tick. Caller must hold s.mu.
func (s *TrialService) cancelLoop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *TrialService) logFinished(report *domain.Report) {
	fields := []zap.Field{
		zap.String("run_id", s.runID),
		zap.String("subject", report.SubjectID),
		zap.String("reason", string(report.Reason)),
		zap.Duration("effective", report.EffectiveDuration),
	}
	for _, zr := range report.Zones {
		fields = append(fields, zap.Duration(zr.Zone.String(), zr.Time))
	}
	s.logger.Info("Trial finished", fields...)
}
