// Package walker pages through a subreddit's newest-first submission
// listing and emits the submissions that fall inside the crawl window.
//
// Reddit listings are reverse-chronological and cursor-paginated, so the
// walk never needs to touch the whole subreddit history: the first item
// classified as older than the window start ends the walk, since every
// later item only gets older.
package walker

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jamesprial/go-reddit-crawler/internal/dedup"
	"github.com/jamesprial/go-reddit-crawler/internal/filter"
	"github.com/jamesprial/go-reddit-crawler/internal/ratelimit"
	"github.com/jamesprial/go-reddit-crawler/internal/window"
	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

const (
	// DefaultMaxRetries bounds attempts at the same cursor before the
	// subreddit is declared failed.
	DefaultMaxRetries = 3

	defaultRetryWait = time.Second
)

// Lister is the slice of the API session the walker needs.
type Lister interface {
	// ListSubmissions fetches one listing page. after is the cursor from
	// the previous page, empty for the first.
	ListSubmissions(ctx context.Context, subreddit, after string) (*types.ListingPage, error)
}

// Config wires the walker's collaborators. Limiter and Registry are shared
// with every other component of the run.
type Config struct {
	Session  Lister
	Limiter  *ratelimit.Limiter
	Registry *dedup.Registry
	Filter   *filter.Filter
	Logger   *slog.Logger
	// MaxRetries bounds attempts per cursor. Defaults to DefaultMaxRetries.
	MaxRetries int
	// RetryWait is the base delay between attempts at the same cursor; it
	// doubles per attempt with jitter.
	RetryWait time.Duration
}

// Walker walks one subreddit at a time. Pages are fetched strictly in
// API-returned order; the stop condition is only valid under that ordering.
type Walker struct {
	session    Lister
	limiter    *ratelimit.Limiter
	registry   *dedup.Registry
	filter     *filter.Filter
	logger     *slog.Logger
	maxRetries int
	retryWait  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a walker from cfg, applying defaults for zero fields.
func New(cfg Config) *Walker {
	w := &Walker{
		session:    cfg.Session,
		limiter:    cfg.Limiter,
		registry:   cfg.Registry,
		filter:     cfg.Filter,
		logger:     cfg.Logger,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
	}
	if w.filter == nil {
		w.filter = filter.New(filter.Options{})
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if w.maxRetries < 1 {
		w.maxRetries = DefaultMaxRetries
	}
	if w.retryWait <= 0 {
		w.retryWait = defaultRetryWait
	}
	w.sleep = timerSleep
	return w
}

// Walk emits every in-window, non-duplicate submission of subreddit to
// emit, newest first, and returns when the window is exhausted or the
// listing ends. A fetch failure past the retry budget returns a
// *crawlerr.SubredditError; other subreddits in the run are unaffected.
// Emit errors (including cancellation) are returned as-is.
func (w *Walker) Walk(ctx context.Context, subreddit string, win types.Window, emit func(context.Context, *types.Submission) error) error {
	cursor := types.Cursor{}
	for {
		page, err := w.fetchPage(ctx, subreddit, cursor.After)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return &crawlerr.SubredditError{Subreddit: subreddit, Err: err}
		}

		for _, item := range page.Items {
			switch window.Classify(item.CreatedUTC, win) {
			case window.Before:
				// Older items only get older; no further pages.
				w.logger.Debug("window exhausted",
					"subreddit", subreddit, "submission", item.ID, "created", item.CreatedUTC)
				return nil
			case window.After:
				continue
			}
			if !cursor.LastSeen.IsZero() && item.CreatedUTC.After(cursor.LastSeen) {
				// The listing shifted between page fetches. The dedup
				// registry keeps emission exactly-once; this only surfaces
				// the drift.
				w.logger.Debug("listing drift detected",
					"subreddit", subreddit, "submission", item.ID,
					"created", item.CreatedUTC, "last_seen", cursor.LastSeen)
			}
			if !w.filter.Accept(item) {
				continue
			}
			if !w.registry.MarkSubmission(item.ID) {
				// Listing drift: the item shifted onto this page after we
				// already emitted it. Skipping must not reset the walk.
				w.logger.Debug("duplicate submission skipped",
					"subreddit", subreddit, "submission", item.ID)
				continue
			}
			cursor.LastSeen = item.CreatedUTC
			if err := emit(ctx, item); err != nil {
				return err
			}
		}

		if len(page.Items) == 0 || page.After == "" {
			return nil
		}
		cursor.After = page.After
	}
}

// fetchPage retries the same cursor up to maxRetries times on transient
// failures, feeding every quota signal back into the shared limiter.
func (w *Walker) fetchPage(ctx context.Context, subreddit, after string) (*types.ListingPage, error) {
	wait := w.retryWait
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err := w.limiter.Acquire(ctx, 1); err != nil {
			if errors.Is(err, crawlerr.ErrBackoffCeiling) {
				lastErr = err
				continue
			}
			return nil, err
		}

		page, err := w.session.ListSubmissions(ctx, subreddit, after)
		if err == nil {
			w.limiter.Report(page.Rate)
			w.limiter.ReportSuccess()
			return page, nil
		}

		if crawlerr.IsThrottled(err) {
			w.limiter.ReportThrottled(0)
		}
		if !crawlerr.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		w.logger.Warn("listing page fetch failed",
			"subreddit", subreddit, "after", after, "attempt", attempt, "err", err)

		if attempt < w.maxRetries {
			jittered := time.Duration(float64(wait) * (0.5 + rand.Float64()))
			if err := w.sleep(ctx, jittered); err != nil {
				return nil, err
			}
			wait *= 2
		}
	}
	return nil, lastErr
}

func timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
