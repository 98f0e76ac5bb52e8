package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/crimson-sun/sentinel/internal/flag"
	"github.com/crimson-sun/sentinel/internal/model"
)

// WalkResult is the outcome of one full pagination traversal.
type WalkResult struct {
	// Flagged holds flagged events in first-seen (newest-first) order,
	// deduplicated by event ID.
	Flagged []model.FlaggedEvent
	// NewHorizon is the ID of the newest event observed, or "" when the
	// feed reported no change.
	NewHorizon string
	// PollInterval is the feed's recommended wait before the next walk.
	PollInterval time.Duration
}

// Walker traverses the paginated feed from the newest page backward until
// it re-observes the horizon event, classifying events as it goes.
type Walker struct {
	fetcher *Fetcher
	engine  *flag.Engine
	logger  *slog.Logger
}

// NewWalker creates a Walker over the given fetcher and flagging engine.
func NewWalker(fetcher *Fetcher, engine *flag.Engine) *Walker {
	return &Walker{fetcher: fetcher, engine: engine, logger: slog.Default()}
}

// Walk fetches pages starting at startURL until it finds the event whose ID
// equals horizon, runs out of next-page links, or the feed reports no new
// data. Events with an empty ID are skipped and logged, never fatal.
// Termination is bounded: each iteration consumes one page.
func (w *Walker) Walk(ctx context.Context, startURL, horizon string) (WalkResult, error) {
	res, err := w.fetcher.Fetch(ctx, startURL)
	if err != nil {
		return WalkResult{}, err
	}
	if res.NotModified {
		return WalkResult{PollInterval: DefaultPollInterval}, nil
	}

	page := res.Page
	out := WalkResult{PollInterval: page.PollInterval}
	if len(page.Events) == 0 {
		return out, nil
	}

	// The feed is newest-first: the first event of the first page becomes
	// the horizon for the next cycle.
	out.NewHorizon = page.Events[0].ID

	seen := make(map[string]bool)
	for {
		found := w.scanPage(page.Events, horizon, seen, &out.Flagged)
		if found {
			break
		}
		if page.NextURL == "" {
			break
		}

		res, err = w.fetcher.Fetch(ctx, page.NextURL)
		if err != nil {
			return WalkResult{}, err
		}
		if res.NotModified || len(res.Page.Events) == 0 {
			break
		}
		page = res.Page
	}

	return out, nil
}

// scanPage classifies one page of events in order, collecting flagged ones
// not already seen this walk. Returns true when the horizon was reached.
func (w *Walker) scanPage(events []model.RawEvent, horizon string, seen map[string]bool, flagged *[]model.FlaggedEvent) bool {
	for _, ev := range events {
		if ev.ID == "" {
			w.logger.Warn("feed event missing ID, skipping", "type", ev.Type)
			continue
		}
		if horizon != "" && ev.ID == horizon {
			return true
		}
		if seen[ev.ID] {
			// Pages can overlap when new events arrive mid-walk.
			continue
		}
		seen[ev.ID] = true

		if res := w.engine.Flag(ev); res.Flagged {
			*flagged = append(*flagged, model.FlaggedEvent{Event: ev, Category: res.Category})
		}
	}
	return false
}
