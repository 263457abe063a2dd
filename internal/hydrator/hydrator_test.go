package hydrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jamesprial/go-reddit-crawler/internal/dedup"
	"github.com/jamesprial/go-reddit-crawler/internal/ratelimit"
	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

func testSubmission() *types.Submission {
	return &types.Submission{
		ID:        "post1",
		Fullname:  "t3_post1",
		Subreddit: "golang",
	}
}

func comment(id, parent string) *types.Comment {
	return &types.Comment{
		ID:       id,
		Fullname: "t1_" + id,
		ParentID: parent,
		Author:   "someone",
		Body:     "text " + id,
	}
}

// fakeFetcher serves a scripted listing and scripted stub resolutions keyed
// by the stub's first child id.
type fakeFetcher struct {
	listing     *types.CommentListing
	listingErrs []error
	resolutions map[string]*types.MoreChildren
	resolveErrs map[string][]error
	resolves    int
}

func (f *fakeFetcher) ListComments(context.Context, string, string) (*types.CommentListing, error) {
	if len(f.listingErrs) > 0 {
		err := f.listingErrs[0]
		f.listingErrs = f.listingErrs[1:]
		return nil, err
	}
	if f.listing == nil {
		return &types.CommentListing{}, nil
	}
	return f.listing, nil
}

func (f *fakeFetcher) ResolveStub(_ context.Context, _ string, stub types.Stub) (*types.MoreChildren, error) {
	f.resolves++
	key := ""
	if len(stub.ChildIDs) > 0 {
		key = stub.ChildIDs[0]
	}
	if queue := f.resolveErrs[key]; len(queue) > 0 {
		err := queue[0]
		f.resolveErrs[key] = queue[1:]
		return nil, err
	}
	if more, ok := f.resolutions[key]; ok {
		return more, nil
	}
	return &types.MoreChildren{}, nil
}

func newTestHydrator(f *fakeFetcher, cfg Config) *Hydrator {
	cfg.Session = f
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(ratelimit.Config{RequestsPerMinute: 600000, Burst: 1000})
	}
	if cfg.Registry == nil {
		cfg.Registry = dedup.New()
	}
	return New(cfg)
}

func commentIDs(tree *types.CommentTree) []string {
	ids := make([]string, len(tree.Comments))
	for i, c := range tree.Comments {
		ids[i] = c.ID
	}
	return ids
}

func TestHydrateEmptyTree(t *testing.T) {
	f := &fakeFetcher{}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if !tree.Complete {
		t.Error("empty tree should be complete")
	}
	if len(tree.Comments) != 0 || len(tree.Gaps) != 0 {
		t.Errorf("expected empty tree, got %d comments, %d gaps", len(tree.Comments), len(tree.Gaps))
	}
	if tree.SubmissionID != "post1" {
		t.Errorf("SubmissionID = %q, want post1", tree.SubmissionID)
	}
}

func TestHydrateOrdersParentsBeforeChildren(t *testing.T) {
	// Children arrive before their parents; build must still order
	// parent-first and recompute depths from the chain.
	f := &fakeFetcher{listing: &types.CommentListing{
		Comments: []*types.Comment{
			comment("grandchild", "t1_child"),
			comment("child", "t1_top"),
			comment("top", "t3_post1"),
			comment("top2", "t3_post1"),
		},
	}}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	want := []string{"top", "child", "grandchild", "top2"}
	if fmt.Sprint(commentIDs(tree)) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", commentIDs(tree), want)
	}
	depths := map[string]int{"top": 0, "child": 1, "grandchild": 2, "top2": 0}
	for _, c := range tree.Comments {
		if c.Depth != depths[c.ID] {
			t.Errorf("comment %s depth = %d, want %d", c.ID, c.Depth, depths[c.ID])
		}
		if c.SubmissionID != "post1" {
			t.Errorf("comment %s SubmissionID = %q, want post1", c.ID, c.SubmissionID)
		}
	}
}

func TestHydrateResolvesStubs(t *testing.T) {
	f := &fakeFetcher{
		listing: &types.CommentListing{
			Comments: []*types.Comment{comment("top", "t3_post1")},
			Stubs: []types.Stub{
				{ID: "more1", ParentID: "t1_top", ChildIDs: []string{"r1", "r2"}},
			},
		},
		resolutions: map[string]*types.MoreChildren{
			"r1": {
				Comments: []*types.Comment{comment("r1", "t1_top"), comment("r2", "t1_r1")},
				Stubs: []types.Stub{
					{ID: "more2", ParentID: "t1_r2", ChildIDs: []string{"r3"}},
				},
			},
			"r3": {
				Comments: []*types.Comment{comment("r3", "t1_r2")},
			},
		},
	}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if !tree.Complete {
		t.Errorf("tree should be complete, gaps: %v", tree.Gaps)
	}
	want := []string{"top", "r1", "r2", "r3"}
	if fmt.Sprint(commentIDs(tree)) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", commentIDs(tree), want)
	}
	if f.resolves != 2 {
		t.Errorf("resolve calls = %d, want 2", f.resolves)
	}
}

func TestHydrateStubSiblingsShareDepth(t *testing.T) {
	f := &fakeFetcher{
		listing: &types.CommentListing{
			Comments: []*types.Comment{comment("top", "t3_post1")},
			Stubs: []types.Stub{
				{ID: "m", ParentID: "t1_top", ChildIDs: []string{"s1", "s2", "s3"}},
			},
		},
		resolutions: map[string]*types.MoreChildren{
			"s1": {Comments: []*types.Comment{
				comment("s1", "t1_top"),
				comment("s2", "t1_top"),
				comment("s3", "t1_top"),
			}},
		},
	}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if len(tree.Comments) != 4 {
		t.Fatalf("comments = %d, want 4", len(tree.Comments))
	}
	wantDepths := map[string]int{"top": 0, "s1": 1, "s2": 1, "s3": 1}
	for _, c := range tree.Comments {
		if c.Depth != wantDepths[c.ID] {
			t.Errorf("comment %s depth = %d, want %d", c.ID, c.Depth, wantDepths[c.ID])
		}
	}
}

func TestHydrateStubCeilingLeavesGap(t *testing.T) {
	// Every resolution yields another stub, so the ceiling must cut the
	// chain and mark the tree incomplete without an error.
	f := &fakeFetcher{
		listing: &types.CommentListing{
			Comments: []*types.Comment{comment("top", "t3_post1")},
			Stubs:    []types.Stub{{ID: "m", ParentID: "t1_top", ChildIDs: []string{"x"}}},
		},
		resolutions: map[string]*types.MoreChildren{
			"x": {Stubs: []types.Stub{{ID: "m", ParentID: "t1_top", ChildIDs: []string{"x"}}}},
		},
	}
	h := newTestHydrator(f, Config{MaxStubAttempts: 3})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if tree.Complete {
		t.Error("tree should be incomplete after hitting the ceiling")
	}
	if len(tree.Gaps) != 1 {
		t.Fatalf("gaps = %d, want 1", len(tree.Gaps))
	}
	if tree.Gaps[0].ParentID != "t1_top" {
		t.Errorf("gap parent = %q, want t1_top", tree.Gaps[0].ParentID)
	}
	if f.resolves != 3 {
		t.Errorf("resolve calls = %d, want 3", f.resolves)
	}
}

func TestHydrateRetriesTransientStub(t *testing.T) {
	transient := &crawlerr.TransientError{Operation: "resolve stub", StatusCode: 500}
	f := &fakeFetcher{
		listing: &types.CommentListing{
			Comments: []*types.Comment{comment("top", "t3_post1")},
			Stubs:    []types.Stub{{ID: "m", ParentID: "t1_top", ChildIDs: []string{"r1"}}},
		},
		resolutions: map[string]*types.MoreChildren{
			"r1": {Comments: []*types.Comment{comment("r1", "t1_top")}},
		},
		resolveErrs: map[string][]error{"r1": {transient}},
	}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if !tree.Complete {
		t.Errorf("tree should be complete after retry, gaps: %v", tree.Gaps)
	}
	if f.resolves != 2 {
		t.Errorf("resolve calls = %d, want 2", f.resolves)
	}
}

func TestHydrateNonRetryableStubBecomesGap(t *testing.T) {
	fatal := errors.New("404 Not Found")
	f := &fakeFetcher{
		listing: &types.CommentListing{
			Comments: []*types.Comment{comment("top", "t3_post1")},
			Stubs:    []types.Stub{{ID: "m", ParentID: "t1_top", ChildIDs: []string{"r1"}}},
		},
		resolveErrs: map[string][]error{"r1": {fatal}},
	}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if tree.Complete {
		t.Error("tree should be incomplete")
	}
	if len(tree.Gaps) != 1 || tree.Gaps[0].Reason != fatal.Error() {
		t.Errorf("gaps = %v, want one gap with reason %q", tree.Gaps, fatal.Error())
	}
	if len(tree.Comments) != 1 {
		t.Errorf("comments = %d, want the resolved top comment kept", len(tree.Comments))
	}
}

func TestHydrateListingFetchFails(t *testing.T) {
	transient := &crawlerr.TransientError{Operation: "list comments", StatusCode: 502}
	f := &fakeFetcher{listingErrs: []error{transient, transient, transient}}
	h := newTestHydrator(f, Config{MaxRetries: 3})

	_, err := h.Hydrate(context.Background(), testSubmission())
	if !errors.Is(err, transient) {
		t.Fatalf("expected the transient error back, got %v", err)
	}
}

func TestHydrateDropsOrphanedComments(t *testing.T) {
	f := &fakeFetcher{listing: &types.CommentListing{
		Comments: []*types.Comment{
			comment("ok", "t3_post1"),
			comment("orphan", "t1_missing"),
		},
	}}
	h := newTestHydrator(f, Config{})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if len(tree.Comments) != 1 || tree.Comments[0].ID != "ok" {
		t.Errorf("comments = %v, want only [ok]", commentIDs(tree))
	}
}

func TestHydrateSkipsDuplicateComments(t *testing.T) {
	registry := dedup.New()
	registry.MarkComment("post1", "already")

	f := &fakeFetcher{listing: &types.CommentListing{
		Comments: []*types.Comment{
			comment("already", "t3_post1"),
			comment("fresh", "t3_post1"),
		},
	}}
	h := newTestHydrator(f, Config{Registry: registry})

	tree, err := h.Hydrate(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Hydrate returned error: %v", err)
	}
	if len(tree.Comments) != 1 || tree.Comments[0].ID != "fresh" {
		t.Errorf("comments = %v, want only [fresh]", commentIDs(tree))
	}
}
