package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crimson-sun/sentinel/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) WebhookOption {
	return func(w *Webhook) { w.headers = h }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.Timeout = d }
}

// Webhook POSTs each batch of warnings to an HTTP endpoint as a JSON
// array. Retries on 5xx with exponential backoff.
type Webhook struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// NewWebhook creates a webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		client: &http.Client{Timeout: defaultTimeout},
		url:    url,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Webhook) Publish(ctx context.Context, warnings []model.Warning) error {
	if len(warnings) == 0 {
		return nil
	}
	body, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("webhook sink: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(1<<(attempt-1)) * time.Second)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook sink: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("webhook sink: %w", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook sink: HTTP %d", resp.StatusCode)

		// Only retry on 5xx server errors.
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}

func (w *Webhook) Close() error { return nil }
