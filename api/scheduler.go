/*
scheduler.go - Automated expiry sweep scheduler

PURPOSE:
  Periodically runs personnel.Service.Sweep: expires internships whose end
  date has passed and republishes the upcoming-expiry warning feed.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Never overlaps runs: a tick (or manual trigger) that finds a run in
    progress is skipped
  - Remembers the last result for the admin status endpoint

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour, SWEEP_INTERVAL)
  - Enabled: Whether the scheduler is active (default: true, SWEEP_ENABLED)

USAGE:
  scheduler := NewSweepScheduler(service, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers_admin.go: RunSweep endpoint (manual sweep)
  - personnel/sweep.go: the sweep itself
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/personnel-engine/personnel"
)

// ErrSweepRunning is returned by RunOnce while another run is in progress.
var ErrSweepRunning = errors.New("sweep already running")

// SweepScheduler handles the periodic expiry sweep.
type SweepScheduler struct {
	Service  *personnel.Service
	Interval time.Duration
	Enabled  bool
	Log      *logrus.Entry

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// running guards against overlapping sweeps.
	running sync.Mutex

	lastMu  sync.Mutex
	lastRun time.Time
	last    *personnel.SweepResult
	lastErr error
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(svc *personnel.Service, log *logrus.Entry) *SweepScheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SweepScheduler{
		Service:  svc,
		Interval: 1 * time.Hour,
		Enabled:  true,
		Log:      log.WithField("component", "sweep-scheduler"),
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Log.WithField("interval", s.Interval.String()).Info("started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Log.Info("stopped")
	}
}

func (s *SweepScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-stop:
			return
		}
	}
}

func (s *SweepScheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSweepRunning):
		s.Log.Debug("previous sweep still running, skipping tick")
	case err != nil:
		s.Log.WithError(err).Error("sweep failed")
	}
}

// RunOnce sweeps now unless a sweep is already running.
func (s *SweepScheduler) RunOnce(ctx context.Context) (personnel.SweepResult, error) {
	if !s.running.TryLock() {
		return personnel.SweepResult{}, ErrSweepRunning
	}
	defer s.running.Unlock()

	result, err := s.Service.Sweep(ctx)

	s.lastMu.Lock()
	s.lastRun = time.Now().UTC()
	s.lastErr = err
	if err == nil {
		s.last = &result
	}
	s.lastMu.Unlock()

	return result, err
}

// Status reports configuration and the last run.
func (s *SweepScheduler) Status() SweepStatusDTO {
	running := !s.running.TryLock()
	if !running {
		s.running.Unlock()
	}

	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	dto := SweepStatusDTO{
		Enabled:  s.Enabled,
		Interval: s.Interval.String(),
		Running:  running,
		LastRun:  formatTS(s.lastRun),
		Result:   s.last,
	}
	if s.lastErr != nil {
		dto.LastErr = s.lastErr.Error()
	}
	return dto
}
