// Package poller runs the write path: one sequential poll cycle at a
// time, each cycle walking the feed, persisting flagged events, and
// feeding the bounded event log.
package poller

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/crimson-sun/sentinel/internal/feed"
	"github.com/crimson-sun/sentinel/internal/metrics"
	"github.com/crimson-sun/sentinel/internal/model"
	"github.com/crimson-sun/sentinel/internal/queue"
	"github.com/crimson-sun/sentinel/internal/sink"
)

// DefaultFallbackInterval is the sleep after a failed cycle.
const DefaultFallbackInterval = 60 * time.Second

// Store is the slice of the warnings store the poller depends on.
type Store interface {
	Horizon(ctx context.Context) (string, error)
	SetHorizon(ctx context.Context, id string) error
	UpsertWarnings(ctx context.Context, batch []model.FlaggedEvent) ([]model.Warning, error)
}

// Option configures Poller behavior.
type Option func(*Poller)

// WithFallbackInterval sets the sleep used after a failed cycle.
func WithFallbackInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.fallback = d
		}
	}
}

// WithSink attaches a notification sink for newly accepted warnings.
// Sink errors are logged and never fail the cycle.
func WithSink(s sink.Sink) Option {
	return func(p *Poller) { p.sink = s }
}

// Poller owns the horizon and drives poll cycles forever. All collaborators
// are injected; the poller holds no global state.
type Poller struct {
	walker   *feed.Walker
	store    Store
	log      *queue.Log
	sink     sink.Sink
	startURL string
	fallback time.Duration
	logger   *slog.Logger
}

// New creates a Poller polling startURL.
func New(walker *feed.Walker, store Store, log *queue.Log, startURL string, opts ...Option) *Poller {
	p := &Poller{
		walker:   walker,
		store:    store,
		log:      log,
		startURL: startURL,
		fallback: DefaultFallbackInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce executes one poll cycle and returns the recommended sleep before
// the next. The horizon is advanced only after the batch is durably
// persisted, so a crash mid-cycle is safe to retry: the store's upsert by
// event ID makes reprocessing a no-op.
func (p *Poller) RunOnce(ctx context.Context) (time.Duration, error) {
	horizon, err := p.store.Horizon(ctx)
	if err != nil {
		return 0, err
	}

	res, err := p.walker.Walk(ctx, p.startURL, horizon)
	if err != nil {
		return 0, err
	}

	for _, fe := range res.Flagged {
		metrics.EventsFlagged.WithLabelValues(fe.Category).Inc()
	}

	accepted, err := p.store.UpsertWarnings(ctx, res.Flagged)
	if err != nil {
		// Horizon stays put; the next cycle re-walks the same range.
		return 0, err
	}

	for _, w := range accepted {
		p.log.Append(w.ID, w.Category, w.Payload)
	}
	metrics.WarningsAccepted.Add(float64(len(accepted)))
	metrics.QueueDepth.Set(float64(p.log.Len()))

	if p.sink != nil && len(accepted) > 0 {
		if err := p.sink.Publish(ctx, accepted); err != nil {
			p.logger.Warn("notification sink failed", "error", err)
		}
	}

	if p.shouldAdvance(horizon, res.NewHorizon) {
		if err := p.store.SetHorizon(ctx, res.NewHorizon); err != nil {
			return 0, err
		}
	}

	p.logger.Info("poll cycle complete",
		"flagged", len(res.Flagged),
		"accepted", len(accepted),
		"horizon", res.NewHorizon,
		"next_poll", res.PollInterval)
	return res.PollInterval, nil
}

// shouldAdvance reports whether the horizon may move to candidate. The
// horizon only ever moves forward; IDs are compared numerically when both
// parse, since the feed's IDs increase monotonically.
func (p *Poller) shouldAdvance(current, candidate string) bool {
	if candidate == "" || candidate == current {
		return false
	}
	if current == "" {
		return true
	}
	cur, err1 := strconv.ParseInt(current, 10, 64)
	cand, err2 := strconv.ParseInt(candidate, 10, 64)
	if err1 == nil && err2 == nil {
		if cand <= cur {
			p.logger.Warn("refusing to regress horizon", "current", current, "candidate", candidate)
			return false
		}
		return true
	}
	return true
}

// Run loops RunOnce until the context is cancelled. A failed cycle is
// logged and retried after the fallback interval; nothing here is fatal.
func (p *Poller) Run(ctx context.Context) error {
	for {
		interval, err := p.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.CyclesTotal.WithLabelValues("error").Inc()
			p.logger.Error("poll cycle failed", "error", err, "retry_in", p.fallback)
			interval = p.fallback
		} else {
			metrics.CyclesTotal.WithLabelValues("ok").Inc()
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
