package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"imobot/utils"
)

const (
	notifyAttempts     = 3
	notifyBackoff      = 2 * time.Second
	maxRateLimitWaits  = 5
	defaultRetryAfter  = 5 * time.Second
	notifyHTTPTimeout  = 10 * time.Second
	notifyMessageEvery = time.Second
)

// Notifier posts messages to a Telegram chat. It paces outbound requests,
// honours the server's retry-after on 429 and drops a message after a few
// other failures.
type Notifier struct {
	endpoint string
	chatID   string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *utils.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewNotifier creates a Notifier for the bot token and chat. With either
// credential missing every Send is skipped.
func NewNotifier(apiURL, token, chatID string, logger *utils.Logger) *Notifier {
	n := &Notifier{
		chatID:  chatID,
		client:  &http.Client{Timeout: notifyHTTPTimeout},
		limiter: rate.NewLimiter(rate.Every(notifyMessageEvery), 1),
		logger:  logger,
		sleep:   utils.Sleep,
	}
	if token != "" {
		n.endpoint = strings.TrimRight(apiURL, "/") + "/bot" + token + "/sendMessage"
	}
	return n
}

// Enabled reports whether the notifier has credentials.
func (n *Notifier) Enabled() bool {
	return n.endpoint != "" && n.chatID != ""
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// rateLimitedError carries the wait the server asked for.
type rateLimitedError struct {
	after time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.after)
}

// Send delivers text, retrying as described on Notifier. It never returns
// an error: a dropped notification is logged and forgotten.
func (n *Notifier) Send(ctx context.Context, text string) {
	if !n.Enabled() {
		n.logger.Warn("[notifier] Telegram credentials not configured, skipping notification")
		return
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		n.logger.Error("[notifier] Could not encode message: %v", err)
		return
	}

	failures, waits := 0, 0
	for failures < notifyAttempts {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}

		err := n.post(ctx, body)
		if err == nil {
			return
		}

		var rl *rateLimitedError
		if errors.As(err, &rl) {
			waits++
			if waits > maxRateLimitWaits {
				n.logger.Error("[notifier] Still rate limited after %d waits, dropping message", maxRateLimitWaits)
				return
			}
			n.logger.Info("[notifier] Telegram rate limit (429). Sleeping for %v...", rl.after)
			if n.sleep(ctx, rl.after) != nil {
				return
			}
			continue
		}

		failures++
		n.logger.Error("[notifier] Failed to send message (attempt %d/%d): %v", failures, notifyAttempts, err)
		if failures < notifyAttempts {
			if n.sleep(ctx, notifyBackoff) != nil {
				return
			}
		}
	}
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &rateLimitedError{after: retryAfter(resp.Header.Get("Retry-After"), payload)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("telegram: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

// retryAfter reads the wait from the Retry-After header or, failing that,
// from the parameters.retry_after field of the Bot API error body.
func retryAfter(header string, body []byte) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	var apiErr struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Parameters.RetryAfter > 0 {
		return time.Duration(apiErr.Parameters.RetryAfter) * time.Second
	}
	return defaultRetryAfter
}
