package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/leave-ledger/generic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// RUNNER - Drives a maintenance Job over every employee
// =============================================================================

// Locker guards a maintenance action across processes. Acquire returns
// generic.ErrJobLocked when another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Report summarizes one run.
type Report struct {
	Action    Action    `json:"action"`
	Date      string    `json:"date"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// Runner fetches all employees, maps each through the action's Job and
// persists the result. Employees are independent and processed by a bounded
// pool. The first failure cancels the rest of the batch; employees already
// written stay written.
type Runner struct {
	repo    Repository
	policy  Policy
	ledger  *Ledger
	locker  Locker
	workers int
	logger  *zap.Logger
	now     func() time.Time

	inflight singleflight.Group
}

type RunnerOption func(*Runner)

func WithLocker(l Locker) RunnerOption { return func(r *Runner) { r.locker = l } }

// WithWorkers bounds how many employees are processed concurrently.
func WithWorkers(n int) RunnerOption { return func(r *Runner) { r.workers = n } }

func WithRunnerLogger(l *zap.Logger) RunnerOption { return func(r *Runner) { r.logger = l } }

func WithRunnerClock(now func() time.Time) RunnerOption { return func(r *Runner) { r.now = now } }

func WithRunnerRetries(n int) RunnerOption { return func(r *Runner) { r.ledger.MaxRetries = n } }

func NewRunner(repo Repository, policy Policy, opts ...RunnerOption) *Runner {
	r := &Runner{
		repo:    repo,
		policy:  policy,
		ledger:  NewLedger(nil),
		workers: 4,
		logger:  zap.L().Named("vacation.runner"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	r.ledger.logger = r.logger.Named("ledger")
	r.ledger.Now = r.now
	return r
}

// Run executes action as of now. Concurrent calls for the same action in
// this process share one execution.
func (r *Runner) Run(ctx context.Context, action Action) (Report, error) {
	return r.RunAt(ctx, action, r.now())
}

// RunAt executes action as of the given instant. The shared execution is
// not cancelled with ctx, since other callers may have joined it.
func (r *Runner) RunAt(ctx context.Context, action Action, at time.Time) (Report, error) {
	today := generic.DateOf(at)
	key := action.String() + "@" + today.String()

	v, err, shared := r.inflight.Do(key, func() (any, error) {
		return r.run(context.WithoutCancel(ctx), action, today)
	})
	if shared {
		r.logger.Debug("joined in-flight run", zap.String("action", action.String()))
	}
	report, _ := v.(Report)
	return report, err
}

func (r *Runner) run(ctx context.Context, action Action, today generic.Date) (Report, error) {
	started := time.Now()
	report := Report{Action: action, Date: today.String(), StartedAt: r.now().UTC()}

	job, err := r.policy.Job(action)
	if err != nil {
		return report, err
	}

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, "leave-ledger:maintenance:"+action.String())
		if err != nil {
			return report, err
		}
		defer release()
	}

	emps, err := r.repo.ListEmployees(ctx)
	if err != nil {
		r.logger.Error("list employees failed", zap.String("action", action.String()), zap.Error(err))
		return report, generic.Persist("employees.list", err)
	}
	report.Total = len(emps)

	applied := make([]bool, len(emps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := range emps {
		i, id := i, emps[i].ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, err := r.processOne(gctx, id, job, today)
			if err != nil {
				return fmt.Errorf("employee %s: %w", id, err)
			}
			applied[i] = entry != nil
			return nil
		})
	}
	waitErr := g.Wait()

	for _, ok := range applied {
		if ok {
			report.Processed++
		}
	}
	report.Skipped = report.Total - report.Processed
	report.Duration = time.Since(started).String()

	if waitErr != nil {
		r.logger.Error("maintenance run aborted",
			zap.String("action", action.String()),
			zap.Int("processed", report.Processed),
			zap.Error(waitErr))
		return report, waitErr
	}

	r.logger.Info("maintenance run completed",
		zap.String("action", action.String()),
		zap.String("date", report.Date),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// processOne applies job to a single employee, atomically when the store
// supports transactions.
func (r *Runner) processOne(ctx context.Context, employeeID string, job Job, today generic.Date) (*generic.HistoryEntry, error) {
	var entry *generic.HistoryEntry
	err := inTx(ctx, r.repo, func(repo Repository) error {
		var err error
		entry, err = r.ledger.Apply(ctx, repo, employeeID, func(emp Employee) (Balance, *generic.HistoryEntry, error) {
			next, e := job(emp, today)
			return next, e, nil
		})
		return err
	})
	return entry, err
}
