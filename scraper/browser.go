package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"imobot/config"
	"imobot/models"
	"imobot/utils"
)

const (
	startTimeout = 60 * time.Second
	probeTimeout = 5 * time.Second
)

// BrowserOptions configures how sessions are started and pages rendered.
type BrowserOptions struct {
	// WSEndpoint, when set, connects to an external browser instead of
	// launching a local headless one.
	WSEndpoint string
	ChromeBin  string

	UserAgent      string
	AcceptLanguage string
	Locale         string
	Timezone       string
	ViewportWidth  int64
	ViewportHeight int64

	NavTimeout  time.Duration
	ScrollSteps int
	ScrollPause time.Duration
	Profiles    *config.SiteProfiles
}

// DefaultBrowserOptions returns a desktop Chrome fingerprint for Portuguese
// portals.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		AcceptLanguage: "pt-PT,pt;q=0.9,en-US;q=0.8,en;q=0.7",
		Locale:         "pt-PT",
		Timezone:       "Europe/Lisbon",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		NavTimeout:     90 * time.Second,
		ScrollSteps:    3,
		ScrollPause:    time.Second,
		Profiles:       config.DefaultSiteProfiles(),
	}
}

// Session is one live browser connection. It is replaced wholesale on
// restart and never reused after Close.
type Session struct {
	id            int64
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

// Alive checks the connection with a browser-level round trip, since the
// process can die without the context being cancelled.
func (s *Session) Alive(ctx context.Context) bool {
	if s == nil || s.browserCtx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(s.browserCtx)
	if c == nil || c.Browser == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, _, _, _, _, err := browser.GetVersion().Do(cdp.WithExecutor(probeCtx, c.Browser))
	return err == nil
}

// Close tears the session down. Errors are irrelevant: the handle is
// discarded either way.
func (s *Session) Close() {
	if s == nil {
		return
	}
	if s.cancelBrowser != nil {
		s.cancelBrowser()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
}

// SessionManager owns the single shared browser session. Starts and
// restarts are serialised by mu; page work on a live session is not.
type SessionManager struct {
	root   context.Context
	opts   BrowserOptions
	logger *utils.Logger

	start func(ctx context.Context) (*Session, error)
	alive func(ctx context.Context, s *Session) bool

	mu       sync.Mutex
	session  *Session
	nextID   int64
	restarts atomic.Int64
}

// NewSessionManager creates a manager whose sessions live until root is
// cancelled or Shutdown is called. No browser is started until Acquire.
func NewSessionManager(root context.Context, opts BrowserOptions, logger *utils.Logger) *SessionManager {
	if opts.Profiles == nil {
		opts.Profiles = config.DefaultSiteProfiles()
	}
	m := &SessionManager{root: root, opts: opts, logger: logger}
	m.start = m.launch
	m.alive = func(ctx context.Context, s *Session) bool { return s.Alive(ctx) }
	return m
}

func (m *SessionManager) isAlive(ctx context.Context, s *Session) bool {
	return s != nil && m.alive(ctx, s)
}

// Acquire returns a connected session, starting one if none is alive.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	current := m.session
	m.mu.Unlock()

	if m.isAlive(ctx, current) {
		return current, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another worker may have replaced the session while we probed.
	if m.session != current && m.isAlive(ctx, m.session) {
		return m.session, nil
	}
	if m.session != nil {
		m.logger.Warn("[browser] Session #%d is no longer connected, starting a new one", m.session.id)
		m.session.Close()
		m.session = nil
	}
	return m.startLocked(ctx)
}

// Restart discards the session cause was raised on and starts a fresh one.
// When cause names a session that another worker has already replaced with
// a live one, nothing is restarted.
func (m *SessionManager) Restart(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var se *sessionError
	if errors.As(cause, &se) && m.session != nil && m.session.id != se.session && m.isAlive(ctx, m.session) {
		m.logger.Info("[browser] Session #%d was already replaced by #%d, not restarting", se.session, m.session.id)
		return nil
	}

	m.logger.Warn("[browser] Restarting browser session...")
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	m.restarts.Add(1)
	_, err := m.startLocked(ctx)
	return err
}

// Restarts returns how many restarts have been issued.
func (m *SessionManager) Restarts() int64 {
	return m.restarts.Load()
}

// Shutdown closes the current session.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Info("[browser] Closing session #%d", m.session.id)
		m.session.Close()
		m.session = nil
	}
}

// Render fetches the fully rendered markup of target inside an isolated
// browser context. Render errors carry the session they happened on.
func (m *SessionManager) Render(ctx context.Context, target models.Target) (string, error) {
	s, err := m.Acquire(ctx)
	if err != nil {
		return "", err
	}
	markup, err := m.render(ctx, s, target.URL)
	if err != nil {
		return "", &sessionError{session: s.id, err: err}
	}
	return markup, nil
}

// startLocked starts a session and installs it. m.mu must be held.
func (m *SessionManager) startLocked(ctx context.Context) (*Session, error) {
	s, err := m.start(ctx)
	if err != nil {
		return nil, err
	}
	m.nextID++
	s.id = m.nextID
	m.session = s
	m.logger.Info("[browser] Session #%d ready", s.id)
	return s, nil
}

// launch connects to or launches a browser.
func (m *SessionManager) launch(ctx context.Context) (*Session, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if m.opts.WSEndpoint != "" {
		m.logger.Info("[browser] Connecting to browser at %s...", m.opts.WSEndpoint)
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(m.root, m.opts.WSEndpoint)
	} else {
		chromeBin := m.opts.ChromeBin
		if chromeBin == "" {
			chromeBin = findChromeBinary()
		}
		m.logger.Info("[browser] Launching local headless browser (%s)...", orAuto(chromeBin))

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(m.opts.UserAgent),
			chromedp.WindowSize(int(m.opts.ViewportWidth), int(m.opts.ViewportHeight)),
		)
		if chromeBin != "" {
			opts = append(opts, chromedp.ExecPath(chromeBin))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(m.root, opts...)
	}

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(browserCtx) }()

	var err error
	select {
	case err = <-errc:
	case <-time.After(startTimeout):
		err = fmt.Errorf("no response after %v", startTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		m.logger.Error("[browser] Browser start failed: %v", err)
		return nil, &StartError{Err: err}
	}

	return &Session{
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

// sessionError tags a render failure with the id of the session it ran on.
type sessionError struct {
	session int64
	err     error
}

func (e *sessionError) Error() string { return e.err.Error() }
func (e *sessionError) Unwrap() error { return e.err }

// StartError wraps a failure to launch or connect to the browser.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return "browser start: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

// IsStartError reports whether err came from a failed session start.
func IsStartError(err error) bool {
	var se *StartError
	return errors.As(err, &se)
}

func orAuto(bin string) string {
	if bin == "" {
		return "auto-detected by chromedp"
	}
	return bin
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
