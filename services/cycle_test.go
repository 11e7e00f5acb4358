package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"imobot/models"
	"imobot/storage"
	"imobot/utils"
)

// stubRunner hands each target's records to the pipeline the way the fetch
// workers do, without a browser.
type stubRunner struct {
	pipeline *Pipeline
	pages    map[string][]*models.Listing
	calls    int
	panics   bool
	// browser, when set, has one restart recorded per run.
	browser *countingBrowser
}

func (r *stubRunner) Run(ctx context.Context, targets []models.Target) []models.CycleResult {
	r.calls++
	if r.panics {
		panic("runner exploded")
	}
	if r.browser != nil {
		r.browser.restarts++
	}
	var out []models.CycleResult
	for _, t := range targets {
		recs := r.pages[t.URL]
		_, fresh := r.pipeline.Accept(ctx, t, recs)
		out = append(out, models.CycleResult{URL: t.URL, Status: models.StatusOK, FoundCount: len(recs), NewCount: fresh})
	}
	return out
}

type memReport struct {
	mu     sync.Mutex
	cycles []*models.CycleSummary
}

func (m *memReport) WriteCycle(s *models.CycleSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, s)
	return nil
}

func (m *memReport) Close() error { return nil }

type countingBrowser struct {
	shutdowns int
	restarts  int64
}

func (b *countingBrowser) Shutdown() { b.shutdowns++ }
func (b *countingBrowser) Restarts() int64 { return b.restarts }

func staticTargets(urls ...string) func() ([]models.Target, error) {
	return func() ([]models.Target, error) {
		var ts []models.Target
		for i, u := range urls {
			ts = append(ts, models.Target{URL: u, Index: i, Total: len(urls)})
		}
		return ts, nil
	}
}

func TestRunOnceTotalsNewListings(t *testing.T) {
	sender := &recordingSender{}
	pipeline := NewPipeline(storage.NewMemoryStore(), sender, 100000, utils.NewDiscardLogger())
	runner := &stubRunner{pipeline: pipeline, pages: map[string][]*models.Listing{
		"https://a.pt": {rec("a1", "240.000 €")},
		"https://b.pt": {rec("b1", "Preço sob consulta")},
	}}
	report := &memReport{}
	browser := &countingBrowser{restarts: 4}
	runner.browser = browser

	c := NewCycleScheduler(CycleOptions{
		Targets:  staticTargets("https://a.pt", "https://b.pt"),
		Runner:   runner,
		Pipeline: pipeline,
		Browser:  browser,
		Report:   report,
	}, utils.NewDiscardLogger())

	summary, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.TotalNew != 1 {
		t.Errorf("TotalNew = %d; want 1", summary.TotalNew)
	}
	if len(summary.Results) != 2 {
		t.Errorf("results = %d; want 2", len(summary.Results))
	}
	if summary.ID == "" {
		t.Error("cycle id not set")
	}
	if summary.Unique != 1 || summary.Restarts != 1 {
		t.Errorf("unique = %d, restarts = %d; want 1 and 1", summary.Unique, summary.Restarts)
	}
	if len(report.cycles) != 1 {
		t.Errorf("reports written = %d; want 1", len(report.cycles))
	}
	if browser.shutdowns != 1 {
		t.Errorf("browser shutdowns = %d; want 1", browser.shutdowns)
	}
	if sender.count() != 1 {
		t.Errorf("notifications = %d; want 1", sender.count())
	}
	if st := c.Status(); st.Cycles != 1 || st.LastNew != 1 || st.Running {
		t.Errorf("status = %+v", st)
	}
}

func TestRunOnceTargetError(t *testing.T) {
	c := NewCycleScheduler(CycleOptions{
		Targets: func() ([]models.Target, error) { return nil, errors.New("links: no such file") },
		Runner:  &stubRunner{},
	}, utils.NewDiscardLogger())

	if _, err := c.RunOnce(context.Background()); err == nil {
		t.Fatal("expected an error when targets cannot be loaded")
	}
}

func TestRunSurvivesPanickingCycle(t *testing.T) {
	runner := &stubRunner{panics: true}
	c := NewCycleScheduler(CycleOptions{
		Targets:  staticTargets("https://a.pt"),
		Runner:   runner,
		Interval: time.Hour,
	}, utils.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two cycles, then stop while waiting for the third.
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		if runner.calls >= 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	c.Run(ctx)

	if runner.calls != 2 {
		t.Errorf("cycles run = %d; want 2", runner.calls)
	}
}

func TestWaitReturnsEarlyOnTrigger(t *testing.T) {
	trigger := NewFileTrigger(filepath.Join(t.TempDir(), "trigger.flag"))
	c := NewCycleScheduler(CycleOptions{
		Targets:   staticTargets(),
		Runner:    &stubRunner{},
		Trigger:   trigger,
		Interval:  time.Hour,
		PollEvery: 5 * time.Second,
	}, utils.NewDiscardLogger())

	var slept time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		if slept >= 15*time.Second {
			_ = trigger.Fire()
		}
		return nil
	}

	if !c.wait(context.Background()) {
		t.Fatal("wait reported cancellation")
	}
	if slept != 15*time.Second {
		t.Errorf("slept %v before noticing the trigger; want 15s", slept)
	}
}

func TestWaitSleepsFullInterval(t *testing.T) {
	c := NewCycleScheduler(CycleOptions{
		Targets:   staticTargets(),
		Runner:    &stubRunner{},
		Interval:  12 * time.Second,
		PollEvery: 5 * time.Second,
	}, utils.NewDiscardLogger())

	var steps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		steps = append(steps, d)
		return nil
	}
	c.wait(context.Background())

	want := []time.Duration{5 * time.Second, 5 * time.Second, 2 * time.Second}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v; want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("steps = %v; want %v", steps, want)
			break
		}
	}
}

func TestFileTrigger(t *testing.T) {
	tr := NewFileTrigger(filepath.Join(t.TempDir(), "trigger.flag"))

	if tr.Pending() {
		t.Fatal("fresh trigger is pending")
	}
	if err := tr.Clear(); err != nil {
		t.Fatalf("Clear on missing marker: %v", err)
	}
	if err := tr.Fire(); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if !tr.Pending() {
		t.Fatal("trigger not pending after Fire")
	}
	if err := tr.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if tr.Pending() {
		t.Fatal("trigger still pending after Clear")
	}
}
