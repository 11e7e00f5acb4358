package scraper

import (
	"context"
	"errors"
	"strings"

	"github.com/chromedp/chromedp"
)

// ErrSessionClosed marks an error observed after the shared browser
// session went away.
var ErrSessionClosed = errors.New("browser session closed")

// FailureClass separates failures that kill the shared session from those
// confined to one page.
type FailureClass int

const (
	// ClassOther covers navigation timeouts and page-level errors.
	ClassOther FailureClass = iota
	// ClassConnection means the browser process or connection died.
	ClassConnection
)

func (c FailureClass) String() string {
	if c == ClassConnection {
		return "connection"
	}
	return "other"
}

var connectionMarkers = []string{"closed", "connection", "reset", "disconnected", "broken pipe"}

// Classify maps a render error to its failure class. Typed errors are
// checked first; message matching is the fallback for errors the browser
// library reports as plain text.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return ClassOther
	case IsStartError(err):
		// Acquire starts a session on the next attempt anyway.
		return ClassOther
	case errors.Is(err, ErrSessionClosed),
		errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrInvalidTarget):
		return ClassConnection
	case errors.Is(err, context.DeadlineExceeded):
		return ClassOther
	}

	msg := strings.ToLower(err.Error())
	for _, m := range connectionMarkers {
		if strings.Contains(msg, m) {
			return ClassConnection
		}
	}
	return ClassOther
}

var blockMarkers = []string{"captcha", "acesso negado", "access denied"}

// IsBlocked reports whether markup carries an anti-bot challenge marker.
func IsBlocked(markup string) bool {
	lower := strings.ToLower(markup)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
