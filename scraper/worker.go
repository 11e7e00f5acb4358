package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"imobot/models"
	"imobot/scraper/extract"
	"imobot/utils"
)

// ErrBlocked is the terminal outcome of a page that served an anti-bot
// challenge instead of results.
var ErrBlocked = errors.New("page blocked by anti-bot challenge")

const (
	maxErrorLen    = 50
	blockedSummary = "Blocked/Captcha"
)

// Renderer returns the rendered markup of a target.
type Renderer interface {
	Render(ctx context.Context, target models.Target) (string, error)
}

// Restarter replaces the shared browser session after cause broke it.
type Restarter interface {
	Restart(ctx context.Context, cause error) error
}

// Browser is what a Fetcher needs from the session manager.
type Browser interface {
	Renderer
	Restarter
}

// ListingSink receives the records of a successful fetch and reports how
// many passed the price filter and how many were new.
type ListingSink interface {
	Accept(ctx context.Context, target models.Target, records []*models.Listing) (kept, fresh int)
}

// Fetcher runs the fetch-and-extract operation for one target, retrying
// under a RetryPolicy.
type Fetcher struct {
	browser  Browser
	registry *extract.Registry
	sink     ListingSink
	policy   RetryPolicy
	logger   *utils.Logger

	// DumpDir receives debug_<host>.html when a page yields no records.
	// Empty disables the dump.
	DumpDir string

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher wires a Fetcher.
func NewFetcher(b Browser, registry *extract.Registry, sink ListingSink, policy RetryPolicy, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		browser:  b,
		registry: registry,
		sink:     sink,
		policy:   policy,
		logger:   logger,
		sleep:    utils.Sleep,
	}
}

// Fetch drives one target to a terminal CycleResult. It never panics on
// page errors; every exit produces a result.
func (f *Fetcher) Fetch(ctx context.Context, tag string, target models.Target) models.CycleResult {
	res := models.CycleResult{URL: target.URL}
	limit := f.policy.maxAttempts()

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			f.logger.Info("[%s] %s (attempt %d/%d) Checking: %s", tag, target.Counter(), attempt, limit, target.URL)
		} else {
			f.logger.Info("[%s] %s Checking: %s", tag, target.Counter(), target.URL)
		}

		o := f.attempt(ctx, tag, target)
		switch f.policy.Next(attempt, o) {
		case ActionFinish:
			if o.Kind == OutcomeBlocked {
				f.logger.Warn("[%s] BLOCKED: %s", tag, target.URL)
				res.Status = models.StatusBlocked
				res.Error = blockedSummary
				return res
			}
			kept, fresh := 0, 0
			if len(o.Records) > 0 {
				kept, fresh = f.sink.Accept(ctx, target, o.Records)
				f.logger.Info("[%s] [%s] %s | total: %d | valid: %d | new: %d",
					tag, o.Extractor, target.URL, len(o.Records), kept, fresh)
			}
			res.Status = models.StatusOK
			res.FoundCount = len(o.Records)
			res.NewCount = fresh
			return res

		case ActionGiveUp:
			f.logger.Error("[%s] Giving up on %s after %d attempts: %v", tag, target.URL, attempt, o.Err)
			res.Status = models.StatusFailed
			res.Error = truncate(o.Err.Error(), maxErrorLen)
			return res

		case ActionRestartAndRetry:
			f.logger.Warn("[%s] Browser error on %s: %v. Restarting session...", tag, target.URL, o.Err)
			if err := f.browser.Restart(ctx, o.Err); err != nil {
				f.logger.Error("[%s] Restart failed: %v", tag, err)
			}

		case ActionRetry:
			f.logger.Warn("[%s] Retrying %s in %v: %v", tag, target.URL, f.policy.Delay, o.Err)
		}

		if err := f.sleep(ctx, f.policy.Delay); err != nil {
			res.Status = models.StatusFailed
			res.Error = "cancelled"
			return res
		}
	}
}

// attempt performs a single render and extraction and tags the result.
func (f *Fetcher) attempt(ctx context.Context, tag string, target models.Target) Outcome {
	markup, err := f.browser.Render(ctx, target)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Class: Classify(err), Err: err}
	}

	ex := f.registry.Resolve(target.URL)
	f.logger.Debug("[%s] [%s] markup length: %d", tag, ex.Name(), len(markup))

	records, err := ex.Extract(markup, target.URL)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Class: ClassOther, Err: fmt.Errorf("%s: %w", ex.Name(), err), Extractor: ex.Name()}
	}

	if len(records) == 0 {
		if IsBlocked(markup) {
			return Outcome{Kind: OutcomeBlocked, Err: ErrBlocked, Extractor: ex.Name()}
		}
		f.logger.Warn("[%s] %s | %s | 0 records", tag, target.URL, ex.Name())
		f.dump(tag, target.URL, markup)
	}
	return Outcome{Kind: OutcomeOK, Records: records, Extractor: ex.Name()}
}

func (f *Fetcher) dump(tag, rawURL, markup string) {
	if f.DumpDir == "" {
		return
	}
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	path := filepath.Join(f.DumpDir, "debug_"+host+".html")
	if err := os.WriteFile(path, []byte(markup), 0644); err != nil {
		f.logger.Warn("[%s] Could not dump markup to %s: %v", tag, path, err)
		return
	}
	f.logger.Info("[%s] Markup of %s dumped to %s", tag, host, path)
}

// Scheduler fans targets out to a fixed pool of fetch workers.
type Scheduler struct {
	fetcher     *Fetcher
	concurrency int
	jitter      time.Duration
	logger      *utils.Logger
}

// NewScheduler creates a Scheduler running at most concurrency fetches at
// once. Each worker waits a random delay up to jitter before its first
// target.
func NewScheduler(fetcher *Fetcher, concurrency int, jitter time.Duration, logger *utils.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{fetcher: fetcher, concurrency: concurrency, jitter: jitter, logger: logger}
}

// Run fetches every target once and returns exactly one result per target,
// in the order of targets. Targets still queued when ctx is cancelled are
// reported as failed.
func (s *Scheduler) Run(ctx context.Context, targets []models.Target) []models.CycleResult {
	positions := make([]int, len(targets))
	for i := range positions {
		positions[i] = i
	}

	results := make([]models.CycleResult, len(targets))
	completed := make([]bool, len(targets))
	var started sync.Map

	utils.RunPool(ctx, s.concurrency, utils.NewQueue(positions), func(ctx context.Context, id int, pos int) {
		tag := fmt.Sprintf("worker W-%d", id)
		if _, loaded := started.LoadOrStore(id, true); !loaded && s.jitter > 0 {
			d := time.Duration(rand.Int63n(int64(s.jitter)))
			if err := s.fetcher.sleep(ctx, d); err != nil {
				return
			}
		}
		// Each position is popped by exactly one worker.
		results[pos] = s.fetchContained(ctx, tag, targets[pos])
		completed[pos] = true
	})

	for i, t := range targets {
		if !completed[i] {
			results[i] = models.CycleResult{URL: t.URL, Status: models.StatusFailed, Error: "cancelled"}
		}
	}
	return results
}

// fetchContained keeps a panic in one target from taking down its worker.
func (s *Scheduler) fetchContained(ctx context.Context, tag string, target models.Target) (res models.CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[%s] Failed on %s: %v", tag, target.URL, r)
			res = models.CycleResult{URL: target.URL, Status: models.StatusFailed, Error: truncate(fmt.Sprint(r), maxErrorLen)}
		}
	}()
	return s.fetcher.Fetch(ctx, tag, target)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
