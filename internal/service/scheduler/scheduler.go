// Package scheduler triggers sync runs on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bq-viewsync/internal/domain"
)

// Runner runs one sync pass. Implemented by reconcile.SyncService.
type Runner interface {
	Sync(ctx context.Context, trigger string) (*domain.SyncReport, error)
}

// Scheduler fires scheduled sync runs. A tick that arrives while the
// previous scheduled run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entry   cron.EntryID
	started bool
}

// New creates a Scheduler.
func New(runner Runner, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start schedules runs on spec, a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 15m". Runs use ctx, so cancelling
// it aborts an in-flight scheduled run.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return domain.ErrValidation("invalid SYNC_SCHEDULE %q: %v", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.cron.Remove(s.entry)
	}
	s.ctx = ctx
	s.entry = s.cron.Schedule(sched, cron.FuncJob(s.runOnce))
	if !s.started {
		s.cron.Start()
		s.started = true
	}
	s.logger.Info("sync scheduled", "schedule", spec, "next", sched.Next(time.Now()))
	return nil
}

// Stop stops firing new runs and waits for a running one to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	report, err := s.runner.Sync(ctx, domain.TriggerScheduled)
	if err != nil {
		s.logger.Warn("scheduled sync failed", "error", err)
		return
	}
	s.logger.Info("scheduled sync finished", "run_id", report.ID, "status", report.Status)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
