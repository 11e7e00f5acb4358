package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"imobot/models"
	"imobot/storage"
	"imobot/utils"
)

const defaultPollEvery = 5 * time.Second

type seenCounter interface{ Seen() int }

type restartCounter interface{ Restarts() int64 }

// TargetRunner fetches every target of a cycle once.
type TargetRunner interface {
	Run(ctx context.Context, targets []models.Target) []models.CycleResult
}

// CycleOptions holds the collaborators and timings of a CycleScheduler.
// Only Targets and Runner are required.
type CycleOptions struct {
	Targets func() ([]models.Target, error)
	Runner  TargetRunner

	// Pipeline is reset at the start of every cycle. If it also counts the
	// ids it has seen, the count goes into the summary.
	Pipeline interface{ Reset() }
	// Browser is shut down at the end of every cycle so the next one starts
	// on a fresh session. Its restart counter, if any, feeds the summary.
	Browser interface{ Shutdown() }
	Report  storage.CycleReportWriter
	Trigger Trigger

	Interval  time.Duration
	PollEvery time.Duration
}

// CycleScheduler runs a full pass over the targets, then sleeps until the
// interval elapses or the manual trigger fires.
type CycleScheduler struct {
	opts   CycleOptions
	logger *utils.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status models.SchedulerStatus
}

// NewCycleScheduler creates a CycleScheduler.
func NewCycleScheduler(opts CycleOptions, logger *utils.Logger) *CycleScheduler {
	if opts.PollEvery <= 0 {
		opts.PollEvery = defaultPollEvery
	}
	if opts.Interval <= 0 {
		opts.Interval = opts.PollEvery
	}
	return &CycleScheduler{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  utils.Sleep,
	}
}

// Status returns a snapshot of the loop state.
func (c *CycleScheduler) Status() models.SchedulerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Run loops until ctx is cancelled. A failing cycle is logged and the loop
// carries on with the next interval.
func (c *CycleScheduler) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if t := c.opts.Trigger; t != nil && t.Pending() {
			c.logger.Info("[cycle] Manual trigger detected!")
			if err := t.Clear(); err != nil {
				c.logger.Warn("[cycle] %v", err)
			}
		}

		if _, err := c.runSafely(ctx); err != nil {
			c.logger.Error("[cycle] Cycle failed: %v", err)
		}
		if ctx.Err() != nil {
			return
		}

		next := c.now().Add(c.opts.Interval)
		c.setStatus(func(s *models.SchedulerStatus) { s.NextRun = next })
		c.logger.Info("[cycle] Next check in %v", c.opts.Interval)
		if !c.wait(ctx) {
			return
		}
	}
}

// wait sleeps for the interval in PollEvery increments and returns early
// when the trigger is pending. It returns false once ctx is done.
func (c *CycleScheduler) wait(ctx context.Context) bool {
	for remaining := c.opts.Interval; remaining > 0; {
		if t := c.opts.Trigger; t != nil && t.Pending() {
			return true
		}
		step := min(c.opts.PollEvery, remaining)
		if err := c.sleep(ctx, step); err != nil {
			return false
		}
		remaining -= step
	}
	return true
}

func (c *CycleScheduler) runSafely(ctx context.Context) (summary *models.CycleSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.RunOnce(ctx)
}

// RunOnce performs a single cycle and returns its summary.
func (c *CycleScheduler) RunOnce(ctx context.Context) (*models.CycleSummary, error) {
	c.setStatus(func(s *models.SchedulerStatus) { s.Running = true })
	defer c.setStatus(func(s *models.SchedulerStatus) { s.Running = false })

	c.logger.Info("[cycle] Starting new check...")

	targets, err := c.opts.Targets()
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	summary := &models.CycleSummary{ID: uuid.NewString(), StartedAt: c.now()}
	if len(targets) == 0 {
		c.logger.Warn("[cycle] No targets configured")
		summary.FinishedAt = c.now()
		return summary, nil
	}

	if c.opts.Pipeline != nil {
		c.opts.Pipeline.Reset()
	}
	if c.opts.Browser != nil {
		defer c.opts.Browser.Shutdown()
	}

	rc, countsRestarts := c.opts.Browser.(restartCounter)
	var restartsBefore int64
	if countsRestarts {
		restartsBefore = rc.Restarts()
	}

	for _, r := range c.opts.Runner.Run(ctx, targets) {
		summary.Add(r)
	}
	summary.FinishedAt = c.now()
	if countsRestarts {
		summary.Restarts = rc.Restarts() - restartsBefore
	}
	if sc, ok := c.opts.Pipeline.(seenCounter); ok {
		summary.Unique = sc.Seen()
	}

	LogSummary(c.logger, summary)

	if c.opts.Report != nil {
		if err := c.opts.Report.WriteCycle(summary); err != nil {
			c.logger.Error("[cycle] Could not write cycle report: %v", err)
		}
	}

	c.setStatus(func(s *models.SchedulerStatus) {
		s.Cycles++
		s.LastCycleID = summary.ID
		s.LastRun = summary.FinishedAt
		s.LastNew = summary.TotalNew
	})
	return summary, nil
}

func (c *CycleScheduler) setStatus(fn func(s *models.SchedulerStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
}
