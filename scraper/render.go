package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const markupTimeout = 30 * time.Second

// render loads rawURL in a fresh browser context (own cookies and storage)
// and returns the rendered markup. The context is disposed on every path.
func (m *SessionManager) render(ctx context.Context, s *Session, rawURL string) (markup string, err error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	defer func() {
		if err != nil && s.browserCtx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
	}()

	if err := chromedp.Run(tabCtx, m.emulate()); err != nil {
		return "", fmt.Errorf("open context: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, m.opts.NavTimeout)
	err = chromedp.Run(navCtx, chromedp.Navigate(rawURL))
	cancelNav()
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	profile := m.opts.Profiles.For(rawURL)
	if profile.WaitSelector != "" {
		m.logger.Info("[browser] Waiting for dynamic content (%s) on %s", profile.WaitSelector, profile.Domain)
		waitCtx, cancelWait := context.WithTimeout(tabCtx, profile.WaitTimeout())
		if werr := chromedp.Run(waitCtx, chromedp.WaitVisible(profile.WaitSelector, chromedp.ByQuery)); werr != nil {
			m.logger.Warn("[browser] Timed out waiting for %s on %s", profile.WaitSelector, rawURL)
		}
		cancelWait()
	}

	if err := chromedp.Run(tabCtx, chromedp.Sleep(profile.Settle())); err != nil {
		return "", fmt.Errorf("settle: %w", err)
	}

	// Scroll in fixed increments to trigger lazy-loaded cards.
	steps := m.opts.ScrollSteps
	for i := 1; i <= steps; i++ {
		expr := fmt.Sprintf(`window.scrollTo(0, document.body.scrollHeight * %d / %d)`, i, steps)
		_ = chromedp.Run(tabCtx,
			chromedp.Evaluate(expr, nil),
			chromedp.Sleep(m.opts.ScrollPause),
		)
	}

	outCtx, cancelOut := context.WithTimeout(tabCtx, markupTimeout)
	defer cancelOut()
	if err := chromedp.Run(outCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read markup: %w", err)
	}
	return markup, nil
}

// emulate configures the fingerprint of a new browser context.
func (m *SessionManager) emulate() chromedp.Tasks {
	o := m.opts
	return chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language":           o.AcceptLanguage,
			"Upgrade-Insecure-Requests": "1",
		}),
		emulation.SetUserAgentOverride(o.UserAgent).WithAcceptLanguage(o.AcceptLanguage),
		emulation.SetLocaleOverride().WithLocale(o.Locale),
		emulation.SetTimezoneOverride(o.Timezone),
		chromedp.EmulateViewport(o.ViewportWidth, o.ViewportHeight),
	}
}
