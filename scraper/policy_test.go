package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chromedp/chromedp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, ClassOther},
		{"session closed sentinel", fmt.Errorf("read markup: %w", ErrSessionClosed), ClassConnection},
		{"chromedp channel closed", chromedp.ErrChannelClosed, ClassConnection},
		{"chromedp invalid context", fmt.Errorf("open context: %w", chromedp.ErrInvalidContext), ClassConnection},
		{"navigation timeout", fmt.Errorf("navigate: %w", context.DeadlineExceeded), ClassOther},
		{"connection reset text", errors.New("net::ERR_CONNECTION_RESET"), ClassConnection},
		{"websocket gone", errors.New("websocket: close 1006 (abnormal closure): unexpected EOF, disconnected"), ClassConnection},
		{"broken pipe", errors.New("write tcp: broken pipe"), ClassConnection},
		{"page error", errors.New("net::ERR_NAME_NOT_RESOLVED"), ClassOther},
		{"start failure", &StartError{Err: errors.New("connection refused")}, ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s; want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		markup string
		want   bool
	}{
		{"<div class='g-recaptcha'></div>", true},
		{"<h1>Acesso Negado</h1>", true},
		{"<title>Access Denied</title>", true},
		{"<ul><li>T2 em Lisboa</li></ul>", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsBlocked(tt.markup); got != tt.want {
			t.Errorf("IsBlocked(%q) = %v; want %v", tt.markup, got, tt.want)
		}
	}
}

func TestRetryPolicyNext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	conn := Outcome{Kind: OutcomeTransient, Class: ClassConnection}
	other := Outcome{Kind: OutcomeTransient, Class: ClassOther}

	tests := []struct {
		name    string
		attempt int
		o       Outcome
		want    Action
	}{
		{"ok finishes", 1, Outcome{Kind: OutcomeOK}, ActionFinish},
		{"blocked finishes on first attempt", 1, Outcome{Kind: OutcomeBlocked}, ActionFinish},
		{"connection restarts", 1, conn, ActionRestartAndRetry},
		{"timeout retries without restart", 1, other, ActionRetry},
		{"connection with budget left", 2, conn, ActionRestartAndRetry},
		{"connection on last attempt gives up", 3, conn, ActionGiveUp},
		{"other on last attempt gives up", 3, other, ActionGiveUp},
		{"ok on last attempt finishes", 3, Outcome{Kind: OutcomeOK}, ActionFinish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Next(tt.attempt, tt.o); got != tt.want {
				t.Errorf("Next(%d, %s) = %s; want %s", tt.attempt, tt.o.Kind, got, tt.want)
			}
		})
	}
}

func TestRetryPolicyZeroBudget(t *testing.T) {
	p := RetryPolicy{}
	o := Outcome{Kind: OutcomeTransient, Class: ClassConnection}
	if got := p.Next(1, o); got != ActionGiveUp {
		t.Errorf("Next = %s; want give-up with a single attempt", got)
	}
}
