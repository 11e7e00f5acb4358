package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imobot/utils"
)

// scriptedSessions replaces the browser launch and liveness probe of a
// SessionManager. Sessions whose id is in dead fail the probe.
type scriptedSessions struct {
	mu     sync.Mutex
	dead   map[int64]bool
	starts atomic.Int32
	delay  time.Duration
	err    error
}

func newManager(t *testing.T, sc *scriptedSessions) *SessionManager {
	t.Helper()
	m := NewSessionManager(context.Background(), DefaultBrowserOptions(), utils.NewDiscardLogger())
	m.start = func(ctx context.Context) (*Session, error) {
		sc.starts.Add(1)
		if sc.delay > 0 {
			time.Sleep(sc.delay)
		}
		if sc.err != nil {
			return nil, &StartError{Err: sc.err}
		}
		return &Session{}, nil
	}
	m.alive = func(_ context.Context, s *Session) bool {
		sc.mu.Lock()
		defer sc.mu.Unlock()
		return !sc.dead[s.id]
	}
	return m
}

func (sc *scriptedSessions) kill(id int64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.dead == nil {
		sc.dead = make(map[int64]bool)
	}
	sc.dead[id] = true
}

func TestAcquireReusesLiveSession(t *testing.T) {
	sc := &scriptedSessions{}
	m := newManager(t, sc)

	first, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("a live session should be handed out again")
	}
	if got := sc.starts.Load(); got != 1 {
		t.Errorf("starts = %d; want 1", got)
	}
}

func TestAcquireRechecksLiveness(t *testing.T) {
	sc := &scriptedSessions{}
	m := newManager(t, sc)

	old, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	closed := false
	old.cancelBrowser = func() { closed = true }
	sc.kill(old.id)

	fresh, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fresh == old || fresh.id != 2 {
		t.Errorf("got session #%d; want a new session #2", fresh.id)
	}
	if !closed {
		t.Error("the disconnected session should be closed")
	}
	if got := sc.starts.Load(); got != 2 {
		t.Errorf("starts = %d; want 2", got)
	}
}

func TestConcurrentAcquireAfterCrashStartsOnce(t *testing.T) {
	sc := &scriptedSessions{delay: 20 * time.Millisecond}
	m := newManager(t, sc)

	old, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sc.kill(old.id)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]int64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			ids[i] = s.id
		}(i)
	}
	wg.Wait()

	if got := sc.starts.Load(); got != 2 {
		t.Errorf("starts = %d; want 2 (initial + one replacement)", got)
	}
	for i, id := range ids {
		if id != 2 {
			t.Errorf("caller %d got session #%d; want #2", i, id)
		}
	}
}

func TestAcquireStartFailure(t *testing.T) {
	sc := &scriptedSessions{err: errors.New("chrome not found")}
	m := newManager(t, sc)

	_, err := m.Acquire(context.Background())
	if !IsStartError(err) {
		t.Fatalf("err = %v; want a StartError", err)
	}
	if m.session != nil {
		t.Error("no session should be installed after a failed start")
	}
}

func TestRestartSkipsAlreadyReplacedSession(t *testing.T) {
	sc := &scriptedSessions{}
	m := newManager(t, sc)

	old, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	crash := &sessionError{session: old.id, err: errors.New("websocket: close 1006")}

	// The first worker to see the crash restarts.
	if err := m.Restart(context.Background(), crash); err != nil {
		t.Fatal(err)
	}
	// A second worker reporting the same crash finds session #2 live.
	if err := m.Restart(context.Background(), crash); err != nil {
		t.Fatal(err)
	}
	if got := m.Restarts(); got != 1 {
		t.Errorf("restarts = %d; want 1", got)
	}
	if m.session.id != 2 {
		t.Errorf("current session = #%d; want #2", m.session.id)
	}

	// A failure on the current session, or one without a session, restarts.
	if err := m.Restart(context.Background(), &sessionError{session: 2, err: errors.New("target closed")}); err != nil {
		t.Fatal(err)
	}
	if err := m.Restart(context.Background(), errors.New("connection reset")); err != nil {
		t.Fatal(err)
	}
	if got := m.Restarts(); got != 3 {
		t.Errorf("restarts = %d; want 3", got)
	}
	if got := sc.starts.Load(); got != 4 {
		t.Errorf("starts = %d; want 4", got)
	}
}

func TestSessionErrorKeepsClassification(t *testing.T) {
	err := &sessionError{session: 3, err: ErrSessionClosed}
	if got := Classify(err); got != Classify(ErrSessionClosed) {
		t.Errorf("Classify = %v; want %v", got, Classify(ErrSessionClosed))
	}
	if err.Error() != ErrSessionClosed.Error() {
		t.Errorf("message = %q", err.Error())
	}
}
