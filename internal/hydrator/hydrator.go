// Package hydrator expands a submission's comment forest: it fetches the
// top-level comment listing and then resolves every "more comments" stub
// until none remain or the per-submission attempt ceiling is reached.
//
// Resolution runs over an explicit worklist rather than recursive calls, so
// the depth of nesting Reddit returns never threatens the call stack.
package hydrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jamesprial/go-reddit-crawler/internal/dedup"
	"github.com/jamesprial/go-reddit-crawler/internal/ratelimit"
	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

const (
	// DefaultMaxStubAttempts bounds resolution requests per submission.
	DefaultMaxStubAttempts = 50
	// DefaultMaxRetries bounds attempts at the initial comment listing.
	DefaultMaxRetries = 3
)

// CommentFetcher is the slice of the API session the hydrator needs.
type CommentFetcher interface {
	ListComments(ctx context.Context, subreddit, submissionID string) (*types.CommentListing, error)
	// ResolveStub fetches the comments behind one "more" stub. linkFullname
	// is the submission's prefixed identifier ("t3_...").
	ResolveStub(ctx context.Context, linkFullname string, stub types.Stub) (*types.MoreChildren, error)
}

// Config wires the hydrator's collaborators.
type Config struct {
	Session  CommentFetcher
	Limiter  *ratelimit.Limiter
	Registry *dedup.Registry
	Logger   *slog.Logger
	// MaxStubAttempts is the per-submission ceiling on stub resolution
	// requests. Exhausting it marks the tree incomplete instead of failing.
	MaxStubAttempts int
	MaxRetries      int
}

// Hydrator is safe for concurrent use across submissions; each Hydrate call
// touches only its own tree state.
type Hydrator struct {
	session         CommentFetcher
	limiter         *ratelimit.Limiter
	registry        *dedup.Registry
	logger          *slog.Logger
	maxStubAttempts int
	maxRetries      int
}

// New creates a hydrator from cfg, applying defaults for zero fields.
func New(cfg Config) *Hydrator {
	h := &Hydrator{
		session:         cfg.Session,
		limiter:         cfg.Limiter,
		registry:        cfg.Registry,
		logger:          cfg.Logger,
		maxStubAttempts: cfg.MaxStubAttempts,
		maxRetries:      cfg.MaxRetries,
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	if h.maxStubAttempts < 1 {
		h.maxStubAttempts = DefaultMaxStubAttempts
	}
	if h.maxRetries < 1 {
		h.maxRetries = DefaultMaxRetries
	}
	return h
}

// Hydrate fetches and fully expands the comment tree of sub. A tree is
// always returned on success of the initial fetch, even when stubs were
// left unresolved; only the initial listing fetch failing past its retry
// budget produces an error.
func (h *Hydrator) Hydrate(ctx context.Context, sub *types.Submission) (*types.CommentTree, error) {
	listing, err := h.fetchListing(ctx, sub)
	if err != nil {
		return nil, err
	}

	b := newTreeBuilder(sub, h.registry, h.logger)
	b.add(listing.Comments)
	worklist := append([]types.Stub(nil), listing.Stubs...)

	attempts := 0
	for len(worklist) > 0 {
		stub := worklist[0]
		worklist = worklist[1:]
		if len(stub.ChildIDs) == 0 {
			continue
		}
		if attempts >= h.maxStubAttempts {
			b.gap(stub, "stub attempt ceiling reached")
			continue
		}
		attempts++

		more, err := h.resolveStub(ctx, sub, stub)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if crawlerr.IsRetryable(err) && attempts < h.maxStubAttempts {
				// Spend another attempt on the same stub.
				worklist = append(worklist, stub)
				continue
			}
			h.logger.Warn("stub resolution abandoned",
				"submission", sub.ID, "stub", stub.ID, "err", err)
			b.gap(stub, err.Error())
			continue
		}
		b.add(more.Comments)
		worklist = append(worklist, more.Stubs...)
	}

	tree := b.build()
	if !tree.Complete {
		h.logger.Info("comment tree incomplete",
			"submission", sub.ID, "gaps", len(tree.Gaps), "attempts", attempts)
	}
	return tree, nil
}

func (h *Hydrator) fetchListing(ctx context.Context, sub *types.Submission) (*types.CommentListing, error) {
	var lastErr error
	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		if err := h.limiter.Acquire(ctx, 1); err != nil {
			if errors.Is(err, crawlerr.ErrBackoffCeiling) {
				lastErr = err
				continue
			}
			return nil, err
		}
		listing, err := h.session.ListComments(ctx, sub.Subreddit, sub.ID)
		if err == nil {
			h.limiter.Report(listing.Rate)
			h.limiter.ReportSuccess()
			return listing, nil
		}
		if crawlerr.IsThrottled(err) {
			h.limiter.ReportThrottled(0)
		}
		if !crawlerr.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (h *Hydrator) resolveStub(ctx context.Context, sub *types.Submission, stub types.Stub) (*types.MoreChildren, error) {
	if err := h.limiter.Acquire(ctx, 1); err != nil {
		if errors.Is(err, crawlerr.ErrBackoffCeiling) {
			return nil, &crawlerr.TransientError{Operation: "resolve stub", Err: err}
		}
		return nil, err
	}
	more, err := h.session.ResolveStub(ctx, sub.Fullname, stub)
	if err != nil {
		if crawlerr.IsThrottled(err) {
			h.limiter.ReportThrottled(0)
		}
		return nil, err
	}
	h.limiter.Report(more.Rate)
	h.limiter.ReportSuccess()
	return more, nil
}

// treeBuilder accumulates comments keyed by fullname and assembles the
// final parent-before-child ordering.
type treeBuilder struct {
	sub      *types.Submission
	registry *dedup.Registry
	logger   *slog.Logger
	byName   map[string]*types.Comment
	order    []string // fullnames in arrival order
	gaps     []types.Gap
}

func newTreeBuilder(sub *types.Submission, registry *dedup.Registry, logger *slog.Logger) *treeBuilder {
	return &treeBuilder{
		sub:      sub,
		registry: registry,
		logger:   logger,
		byName:   make(map[string]*types.Comment),
	}
}

func (b *treeBuilder) add(comments []*types.Comment) {
	for _, c := range comments {
		if c == nil || c.ID == "" {
			continue
		}
		if b.registry != nil && !b.registry.MarkComment(b.sub.ID, c.ID) {
			continue
		}
		c.SubmissionID = b.sub.ID
		if c.Fullname == "" {
			c.Fullname = "t1_" + c.ID
		}
		if _, ok := b.byName[c.Fullname]; ok {
			continue
		}
		b.byName[c.Fullname] = c
		b.order = append(b.order, c.Fullname)
	}
}

func (b *treeBuilder) gap(stub types.Stub, reason string) {
	b.gaps = append(b.gaps, types.Gap{
		ParentID: stub.ParentID,
		ChildIDs: stub.ChildIDs,
		Reason:   reason,
	})
}

// build computes depths from the parent chain and emits the tree in
// depth-first order, so parents always precede their children. Comments
// whose parent chain does not reach the submission are dropped as
// malformed.
func (b *treeBuilder) build() *types.CommentTree {
	children := make(map[string][]*types.Comment, len(b.byName))
	for _, name := range b.order {
		c := b.byName[name]
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	tree := &types.CommentTree{
		SubmissionID: b.sub.ID,
		Comments:     make([]*types.Comment, 0, len(b.order)),
		Gaps:         b.gaps,
		Complete:     len(b.gaps) == 0,
	}

	// Iterative DFS from the submission root. The visited set guards
	// against parent cycles in malformed responses.
	type frame struct {
		comment *types.Comment
		depth   int
	}
	visited := make(map[string]struct{}, len(b.byName))
	var stack []frame
	push := func(parents []*types.Comment, depth int) {
		for i := len(parents) - 1; i >= 0; i-- {
			stack = append(stack, frame{parents[i], depth})
		}
	}
	push(children[b.sub.Fullname], 0)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[f.comment.Fullname]; ok {
			continue
		}
		visited[f.comment.Fullname] = struct{}{}
		f.comment.Depth = f.depth
		tree.Comments = append(tree.Comments, f.comment)
		push(children[f.comment.Fullname], f.depth+1)
	}

	if dropped := len(b.order) - len(tree.Comments); dropped > 0 {
		for _, name := range b.order {
			if _, ok := visited[name]; !ok {
				b.logger.Warn("comment dropped, parent chain does not reach submission",
					"submission", b.sub.ID, "comment", b.byName[name].ID,
					"parent", b.byName[name].ParentID)
			}
		}
	}
	return tree
}
