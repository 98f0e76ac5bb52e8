// Package feed talks to the upstream activity feed: a rate-limited
// fetcher for single pages and a pagination walker that traverses the
// feed back to the previously processed horizon.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crimson-sun/sentinel/internal/model"
)

const (
	// DefaultPollInterval applies when the feed omits X-Poll-Interval.
	DefaultPollInterval = 60 * time.Second

	defaultBackoffBase = time.Second
	defaultTimeout     = 30 * time.Second
)

// APIError represents a non-retryable non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Result is the outcome of a single fetch. Exactly one of the two shapes
// applies: NotModified is true and Page is nil, or Page is set.
type Result struct {
	NotModified bool
	Page        *Page
}

// Page is one page of feed events plus its pagination metadata.
type Page struct {
	Events       []model.RawEvent
	NextURL      string        // empty when the feed exposes no further page
	PollInterval time.Duration // operator-recommended minimum between polls
}

// Option configures Fetcher behavior.
type Option func(*Fetcher)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.httpClient.Timeout = d }
}

// WithBackoff sets the base backoff and an optional ceiling. A zero max
// leaves the doubling uncapped.
func WithBackoff(base, max time.Duration) Option {
	return func(f *Fetcher) {
		if base > 0 {
			f.backoffBase = base
		}
		f.backoffMax = max
	}
}

// withSleep replaces the backoff sleep, for tests.
func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// Fetcher issues conditional GETs against the feed with bearer-token auth.
// Transient failures (rate limit, service unavailable, network errors) are
// retried internally with doubling backoff and never surface to the caller;
// the only errors returned are context cancellation and non-retryable
// upstream responses.
type Fetcher struct {
	token       string
	httpClient  *http.Client
	backoffBase time.Duration
	backoffMax  time.Duration // 0 = uncapped
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger

	mu    sync.Mutex
	etags map[string]string // URL -> last seen ETag
}

// NewFetcher creates a Fetcher authenticating with the given token.
func NewFetcher(token string, opts ...Option) *Fetcher {
	f := &Fetcher{
		token:       token,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		backoffBase: defaultBackoffBase,
		sleep:       sleepCtx,
		logger:      slog.Default(),
		etags:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// attemptOutcome classifies one HTTP attempt so the retry loop can branch
// on a value instead of catching errors.
type attemptOutcome int

const (
	outcomePage attemptOutcome = iota
	outcomeNotModified
	outcomeRetryable
	outcomeFatal
)

// Fetch GETs the given URL and blocks, retrying the same URL with doubling
// backoff, until the upstream produces a page or a not-modified response.
// Backoff starts from the base on every call; it is not carried across calls.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Result, error) {
	backoff := f.backoffBase

	for {
		outcome, res, err := f.attempt(ctx, url)
		switch outcome {
		case outcomePage:
			return res, nil
		case outcomeNotModified:
			return Result{NotModified: true}, nil
		case outcomeFatal:
			return Result{}, err
		case outcomeRetryable:
			f.logger.Warn("feed fetch retrying", "url", url, "backoff", backoff, "error", err)
			if err := f.sleep(ctx, backoff); err != nil {
				return Result{}, err
			}
			backoff *= 2
			if f.backoffMax > 0 && backoff > f.backoffMax {
				backoff = f.backoffMax
			}
		}
	}
}

// attempt performs one GET and classifies the result. Network-level
// failures are retryable; a malformed response body on a 2xx is fatal
// (retrying the same bytes would not help).
func (f *Fetcher) attempt(ctx context.Context, url string) (attemptOutcome, Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return outcomeFatal, Result{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	if etag := f.etag(url); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeFatal, Result{}, ctx.Err()
		}
		return outcomeRetryable, Result{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		io.Copy(io.Discard, resp.Body)
		return outcomeNotModified, Result{}, nil

	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return outcomeRetryable, Result{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return outcomeRetryable, Result{}, err
		}
		var events []model.RawEvent
		if err := json.Unmarshal(body, &events); err != nil {
			return outcomeFatal, Result{}, fmt.Errorf("feed: decode events: %w", err)
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			f.setETag(url, etag)
		}
		page := &Page{
			Events:       events,
			NextURL:      nextLink(resp.Header.Get("Link")),
			PollInterval: pollInterval(resp.Header.Get("X-Poll-Interval")),
		}
		return outcomePage, Result{Page: page}, nil

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return outcomeFatal, Result{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

func (f *Fetcher) etag(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.etags[url]
}

func (f *Fetcher) setETag(url, etag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.etags[url] = etag
}

// nextLink extracts the rel="next" URL from a Link header, or "".
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		for _, param := range segs[1:] {
			p := strings.TrimSpace(param)
			if p == `rel="next"` || p == "rel=next" {
				return target
			}
		}
	}
	return ""
}

// pollInterval parses X-Poll-Interval seconds, falling back to the default.
func pollInterval(header string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return DefaultPollInterval
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
