package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrSweepRunning is returned when a sweep is requested while one is in flight.
var ErrSweepRunning = errors.New("sweep is already running")

// Sweeper runs the end-of-day closure.
type Sweeper interface {
	CloseTasksAutomatically(ctx context.Context) (*SweepResult, error)
}

// Notifier delivers a short human-readable message.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Scheduler triggers the sweep on a cron schedule and guards against overlap.
type Scheduler struct {
	sweeper  Sweeper
	notifier Notifier
	logger   *slog.Logger
	location *time.Location

	expr     string
	schedule cron.Schedule
	cron     *cron.Cron
	entryMu  sync.Mutex
	entryID  cron.EntryID
	enabled  bool

	running atomic.Bool

	ctx context.Context
}

// NewScheduler constructs a scheduler for the given cron expression.
// notifier may be nil.
func NewScheduler(sweeper Sweeper, notifier Notifier, logger *slog.Logger, location *time.Location, expr string) (*Scheduler, error) {
	if location == nil {
		location = time.Local
	}
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(location),
	)
	return &Scheduler{
		sweeper:  sweeper,
		notifier: notifier,
		logger:   logger,
		location: location,
		expr:     expr,
		schedule: schedule,
		cron:     c,
	}, nil
}

// Start registers the sweep and begins the scheduling loop. ctx is used for
// the sweeps the schedule triggers.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.entryMu.Lock()
	if !s.enabled {
		s.entryID = s.cron.Schedule(s.schedule, cron.FuncJob(s.handleTrigger))
		s.enabled = true
	}
	s.entryMu.Unlock()
	s.cron.Start()
	s.logger.Info("sweep scheduled", "cron", s.expr, "next", s.Next())
}

// Stop stops the scheduler and returns a context that is done once a running
// sweep finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Expr returns the configured cron expression.
func (s *Scheduler) Expr() string {
	return s.expr
}

// Enabled reports whether the sweep has been registered with the cron loop.
func (s *Scheduler) Enabled() bool {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()
	return s.enabled
}

// Next returns the next time the sweep fires, or the zero time when the
// scheduler has not been started.
func (s *Scheduler) Next() time.Time {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()
	if !s.enabled {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Preview returns the next n fire times computed from base.
func (s *Scheduler) Preview(base time.Time, n int) []time.Time {
	return NextOccurrences(s.schedule, base.In(s.location), n)
}

// RunNow runs a sweep immediately unless one is already running.
func (s *Scheduler) RunNow(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepRunning
	}
	defer s.running.Store(false)

	result, err := s.sweeper.CloseTasksAutomatically(ctx)
	if err != nil {
		return result, fmt.Errorf("sweep: %w", err)
	}
	s.report(ctx, result)
	return result, nil
}

func (s *Scheduler) handleTrigger() {
	ctx := s.ctxOrBackground()
	if _, err := s.RunNow(ctx); err != nil {
		if errors.Is(err, ErrSweepRunning) {
			s.logger.Info("skipping sweep because one is already running")
			return
		}
		s.logger.Error("scheduled sweep", "err", err)
	}
}

func (s *Scheduler) report(ctx context.Context, result *SweepResult) {
	if s.notifier == nil || result == nil {
		return
	}
	if len(result.Closed) == 0 && len(result.Failed) == 0 {
		return
	}
	title := "Time tracker: tasks closed"
	body := fmt.Sprintf("Closed %d, left running %d, failed %d (%s)",
		len(result.Closed), len(result.Skipped), len(result.Failed), result.StartedAt.Format(time.DateOnly))
	if err := s.notifier.Send(ctx, title, body); err != nil {
		s.logger.Warn("send sweep notification", "sweep_id", result.SweepID, "err", err)
	}
}

func (s *Scheduler) ctxOrBackground() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
