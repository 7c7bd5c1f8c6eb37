// Package scheduler handles time-based chain maintenance runs.
// Supports cron expressions and fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/replaychain/internal/logging"
)

var (
	ErrCronAndInterval = errors.New("cron and interval are mutually exclusive")
	ErrNoSchedule      = errors.New("either a cron expression or an interval is required")
)

// Job is the work a tick triggers. The context is cancelled when the
// scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a job on a cron expression or a fixed interval.
type Scheduler struct {
	cronExpr string
	interval time.Duration
	logger   *logging.Logger
}

// New creates a scheduler. Exactly one of cronExpr and interval must be
// set; a cron expression is validated up front.
func New(cronExpr string, interval time.Duration) (*Scheduler, error) {
	if cronExpr != "" && interval > 0 {
		return nil, ErrCronAndInterval
	}
	if cronExpr == "" && interval <= 0 {
		return nil, ErrNoSchedule
	}
	if cronExpr != "" {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
	}
	return &Scheduler{
		cronExpr: cronExpr,
		interval: interval,
		logger:   logging.Component("scheduler"),
	}, nil
}

// Run blocks until ctx is cancelled, invoking job on every tick. Ticks are
// never concurrent: a tick that outlives its slot delays the next one.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	if s.cronExpr != "" {
		return s.runCron(ctx, job)
	}
	return s.runInterval(ctx, job)
}

func (s *Scheduler) runCron(ctx context.Context, job Job) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cronExpr, func() { job(ctx) }); err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}

	s.logger.Infof("scheduler started: cron %q", s.cronExpr)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runInterval(ctx context.Context, job Job) error {
	s.logger.Infof("scheduler started: every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			job(ctx)
		}
	}
}
