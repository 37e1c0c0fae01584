// Package scheduler fires the notify and purge triggers on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"queue-monitor/internal/models"
)

// Standard 5-field expressions (minute, hour, dom, month, dow), evaluated in UTC.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// DefaultRunTimeout bounds a single run of a scheduled job.
const DefaultRunTimeout = 10 * time.Minute

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Scheduler runs registered tasks on their schedules. A task that is still
// running when its next slot comes is skipped for that slot.
type Scheduler struct {
	cron    *cronlib.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cronlib.New(
			cronlib.WithParser(cronParser),
			cronlib.WithLocation(time.UTC),
			cronlib.WithLogger(cl),
			cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: DefaultRunTimeout,
		ctx:     context.Background(),
	}
}

// WithTimeout overrides DefaultRunTimeout.
func (s *Scheduler) WithTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Add registers task under name. An invalid expression is a configuration
// error.
func (s *Scheduler) Add(name, spec string, task Task) error {
	next, err := Next(spec, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: schedule %s %q: %w", models.ErrConfiguration, name, spec, err)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, task) }); err != nil {
		return fmt.Errorf("%w: schedule %s: %w", models.ErrConfiguration, name, err)
	}
	s.logger.Info("scheduled task registered", "task", name, "schedule", spec, "next_run", next)
	return nil
}

// RunNow runs task once outside its schedule, bounded by the run timeout.
func (s *Scheduler) RunNow(name string, task Task) error {
	return s.run(name, task)
}

// Start begins firing tasks. Runs are cancelled with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", len(s.cron.Entries()))
}

// Stop stops firing and waits for running tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next reports the next fire time of spec after t.
func Next(spec string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

func (s *Scheduler) run(name string, task Task) error {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	started := time.Now()
	err := task(ctx)
	if err != nil {
		s.logger.Error("scheduled task failed", "task", name, "duration", time.Since(started), "error", err)
		return err
	}
	s.logger.Info("scheduled task finished", "task", name, "duration", time.Since(started))
	return nil
}

// cronLogger routes the cron library's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
