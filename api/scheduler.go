/*
scheduler.go - In-process maintenance scheduler

PURPOSE:
  Periodically decides which maintenance actions are due and hands them to
  the vacation.Runner.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Due actions depend only on today's month:
      year-transition       in TransitionMonth (January by default)
      expire-previous-year  in ExpirationMonth (June by default)
      monthly-credit        every month
  - Transition runs before credit so a January credit lands in the new year
  - The per-employee guards make every check after the first a no-op, so
    checking hourly is safe

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(runner, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunMaintenance endpoint (manual trigger)
  - vacation/runner.go: Runner
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
	"go.uber.org/zap"
)

// Scheduler triggers maintenance actions on a ticker.
type Scheduler struct {
	Runner          *vacation.Runner
	CheckInterval   time.Duration
	Enabled         bool
	TransitionMonth time.Month
	ExpirationMonth time.Month

	logger *zap.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler with the default calendar: transition
// in January, expiration in June, checks every hour.
func NewScheduler(runner *vacation.Runner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.L()
	}
	return &Scheduler{
		Runner:          runner,
		CheckInterval:   time.Hour,
		Enabled:         true,
		TransitionMonth: time.January,
		ExpirationMonth: time.June,
		logger:          logger.Named("scheduler"),
		now:             time.Now,
	}
}

// Due lists the actions to run on day, in execution order.
func (s *Scheduler) Due(day generic.Date) []vacation.Action {
	var due []vacation.Action
	for _, a := range vacation.Actions {
		switch a {
		case vacation.ActionYearTransition:
			if day.Month() == s.TransitionMonth {
				due = append(due, a)
			}
		case vacation.ActionExpirePreviousYear:
			if day.Month() == s.ExpirationMonth {
				due = append(due, a)
			}
		case vacation.ActionMonthlyCredit:
			due = append(due, a)
		}
	}
	return due
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(ctx)

	s.logger.Info("started",
		zap.Duration("interval", s.CheckInterval),
		zap.Stringer("transition_month", s.TransitionMonth),
		zap.Stringer("expiration_month", s.ExpirationMonth))
}

// Stop stops the scheduler and waits for an in-flight check.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger.Info("stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow runs every due action once. A failed action does not prevent the
// following ones; the next tick retries it.
func (s *Scheduler) RunNow(ctx context.Context) []vacation.Report {
	now := s.now()

	var reports []vacation.Report
	for _, action := range s.Due(generic.DateOf(now)) {
		report, err := s.Runner.RunAt(ctx, action, now)
		switch {
		case errors.Is(err, generic.ErrJobLocked):
			s.logger.Info("action locked elsewhere, skipping", zap.Stringer("action", action))
			continue
		case err != nil:
			s.logger.Error("action failed", zap.Stringer("action", action), zap.Error(err))
			continue
		}
		if report.Processed > 0 {
			s.logger.Info("action applied",
				zap.Stringer("action", action),
				zap.Int("processed", report.Processed),
				zap.Int("skipped", report.Skipped))
		}
		reports = append(reports, report)
	}
	return reports
}
