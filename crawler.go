package redditcrawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jamesprial/go-reddit-crawler/internal/dedup"
	"github.com/jamesprial/go-reddit-crawler/internal/filter"
	"github.com/jamesprial/go-reddit-crawler/internal/hydrator"
	"github.com/jamesprial/go-reddit-crawler/internal/progress"
	"github.com/jamesprial/go-reddit-crawler/internal/ratelimit"
	"github.com/jamesprial/go-reddit-crawler/internal/walker"
	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

const (
	// DefaultListingFanOut bounds how many subreddits walk concurrently.
	DefaultListingFanOut = 4
	// DefaultHydrationFanOut bounds concurrent comment-tree hydrations.
	DefaultHydrationFanOut = 8
)

// Session is the authenticated API surface the crawler consumes. The
// api package provides the real implementation; tests use fakes.
type Session interface {
	ListSubmissions(ctx context.Context, subreddit, after string) (*types.ListingPage, error)
	ListComments(ctx context.Context, subreddit, submissionID string) (*types.CommentListing, error)
	ResolveStub(ctx context.Context, linkFullname string, stub types.Stub) (*types.MoreChildren, error)
}

// Config holds everything one crawl run needs.
type Config struct {
	Subreddits []string
	Window     types.Window

	// ListingFanOut bounds concurrent subreddit walks; within one
	// subreddit, listing pages are always fetched sequentially because the
	// stop condition depends on page order.
	ListingFanOut int
	// HydrationFanOut bounds concurrent comment-tree hydrations across the
	// whole run.
	HydrationFanOut int

	Filters   filter.Options
	RateLimit ratelimit.Config
	// MaxPageRetries bounds attempts per listing cursor.
	MaxPageRetries int
	// MaxStubAttempts is the per-submission stub resolution ceiling.
	MaxStubAttempts int

	// Checkpoint, when set, skips submissions a previous run already
	// exported and records newly emitted ones.
	Checkpoint progress.Store

	Logger *slog.Logger
}

// Record is one crawl result: a submission and its hydrated comment tree.
type Record struct {
	Submission *types.Submission
	Tree       *types.CommentTree
}

// SubredditFailure reports a subreddit whose walk failed past its retry
// budget. The rest of the run is unaffected.
type SubredditFailure struct {
	Subreddit string
	Err       error
}

// RunSummary describes a finished run. Valid once the record channel has
// closed.
type RunSummary struct {
	RunID           string
	Submissions     int
	Comments        int
	IncompleteTrees int
	// CheckpointSkips counts submissions skipped because a previous run
	// already exported them.
	CheckpointSkips int
	// HydrationFailures counts submissions whose comment fetch failed past
	// its retry budget; their listing record is not emitted.
	HydrationFailures int
	Failures          []SubredditFailure
	Started           time.Time
	Finished          time.Time
}

// Crawler composes the walkers, the hydrator, and the shared limiter and
// registry into one pipeline.
type Crawler struct {
	session  Session
	cfg      Config
	limiter  *ratelimit.Limiter
	registry *dedup.Registry
	hydrator *hydrator.Hydrator
	logger   *slog.Logger

	mu      sync.Mutex
	summary RunSummary
}

// New validates cfg and builds a crawler. The window is checked here so an
// inverted range fails before any network activity.
func New(session Session, cfg Config) (*Crawler, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if len(cfg.Subreddits) == 0 {
		return nil, fmt.Errorf("at least one subreddit is required")
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, &crawlerr.WindowError{Message: err.Error()}
	}
	if cfg.ListingFanOut < 1 {
		cfg.ListingFanOut = DefaultListingFanOut
	}
	if cfg.HydrationFanOut < 1 {
		cfg.HydrationFanOut = DefaultHydrationFanOut
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	limiter := ratelimit.New(cfg.RateLimit)
	registry := dedup.New()

	return &Crawler{
		session:  session,
		cfg:      cfg,
		limiter:  limiter,
		registry: registry,
		hydrator: hydrator.New(hydrator.Config{
			Session:         session,
			Limiter:         limiter,
			Registry:        registry,
			Logger:          cfg.Logger,
			MaxStubAttempts: cfg.MaxStubAttempts,
			MaxRetries:      cfg.MaxPageRetries,
		}),
		logger: cfg.Logger,
		summary: RunSummary{
			RunID: uuid.NewString(),
		},
	}, nil
}

// Crawl starts the run and returns the record stream. Records arrive in
// hydration-completion order, unordered across submissions; the channel
// closes when every subreddit's walk and every dispatched hydration has
// finished. Cancelling ctx stops new requests promptly; records already
// hydrated are still delivered as long as the caller keeps draining.
func (c *Crawler) Crawl(ctx context.Context) (<-chan Record, error) {
	c.mu.Lock()
	if !c.summary.Started.IsZero() {
		c.mu.Unlock()
		return nil, fmt.Errorf("crawler has already run")
	}
	c.summary.Started = time.Now()
	c.mu.Unlock()

	records := make(chan Record)
	f := filter.New(c.cfg.Filters)

	// Hydrations are dispatched from inside walker emit callbacks, so they
	// get their own bound independent of the subreddit fan-out.
	hydrationSlots := make(chan struct{}, c.cfg.HydrationFanOut)
	var hydrations sync.WaitGroup

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.ListingFanOut)

	go func() {
		for _, subreddit := range c.cfg.Subreddits {
			group.Go(func() error {
				c.walkSubreddit(gctx, subreddit, f, records, hydrationSlots, &hydrations)
				return nil
			})
		}
		group.Wait()
		hydrations.Wait()

		c.mu.Lock()
		c.summary.Finished = time.Now()
		summary := c.summary
		c.mu.Unlock()
		close(records)
		c.logger.Info("crawl finished",
			"run_id", summary.RunID,
			"submissions", summary.Submissions,
			"comments", summary.Comments,
			"incomplete_trees", summary.IncompleteTrees,
			"failed_subreddits", len(summary.Failures),
			"elapsed", summary.Finished.Sub(summary.Started))
	}()

	return records, nil
}

// Summary returns a snapshot of the run counters. Final once the record
// channel has closed.
func (c *Crawler) Summary() RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.summary
	s.Failures = append([]SubredditFailure(nil), c.summary.Failures...)
	return s
}

func (c *Crawler) walkSubreddit(ctx context.Context, subreddit string, f *filter.Filter, records chan<- Record, slots chan struct{}, hydrations *sync.WaitGroup) {
	w := walker.New(walker.Config{
		Session:    c.session,
		Limiter:    c.limiter,
		Registry:   c.registry,
		Filter:     f,
		Logger:     c.logger,
		MaxRetries: c.cfg.MaxPageRetries,
	})

	c.logger.Info("walking subreddit", "subreddit", subreddit,
		"window_start", c.cfg.Window.Start, "window_end", c.cfg.Window.End)

	err := w.Walk(ctx, subreddit, c.cfg.Window, func(ctx context.Context, sub *types.Submission) error {
		if c.checkpointed(sub.ID) {
			return nil
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		hydrations.Add(1)
		go func() {
			defer hydrations.Done()
			defer func() { <-slots }()
			c.hydrateAndEmit(ctx, sub, records)
		}()
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Error("subreddit failed", "subreddit", subreddit, "err", err)
		c.mu.Lock()
		c.summary.Failures = append(c.summary.Failures, SubredditFailure{Subreddit: subreddit, Err: err})
		c.mu.Unlock()
	}
}

func (c *Crawler) hydrateAndEmit(ctx context.Context, sub *types.Submission, records chan<- Record) {
	tree, err := c.hydrator.Hydrate(ctx, sub)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Warn("hydration failed", "submission", sub.ID, "err", err)
		c.mu.Lock()
		c.summary.HydrationFailures++
		c.mu.Unlock()
		return
	}

	// Completed trees are flushed even under cancellation as long as the
	// consumer keeps draining; the context only breaks the send when
	// nobody is receiving.
	rec := Record{Submission: sub, Tree: tree}
	select {
	case records <- rec:
	default:
		select {
		case records <- rec:
		case <-ctx.Done():
			return
		}
	}

	c.mu.Lock()
	c.summary.Submissions++
	c.summary.Comments += len(tree.Comments)
	if !tree.Complete {
		c.summary.IncompleteTrees++
	}
	c.mu.Unlock()

	if c.cfg.Checkpoint != nil {
		if err := c.cfg.Checkpoint.MarkDone(sub.ID); err != nil {
			c.logger.Warn("checkpoint write failed", "submission", sub.ID, "err", err)
		}
	}
}

func (c *Crawler) checkpointed(id string) bool {
	if c.cfg.Checkpoint == nil {
		return false
	}
	done, err := c.cfg.Checkpoint.IsDone(id)
	if err != nil {
		c.logger.Warn("checkpoint read failed", "submission", id, "err", err)
		return false
	}
	if done {
		c.mu.Lock()
		c.summary.CheckpointSkips++
		c.mu.Unlock()
	}
	return done
}
