// Package types defines the data model shared by every stage of the crawl
// pipeline: submissions, comments, comment trees, date windows, and listing
// cursors.
package types

import (
	"fmt"
	"time"
)

// Submission is one Reddit post as seen at fetch time. Records are
// snapshots: score and comment count are whatever the listing returned and
// are never rewritten by later pipeline stages, even if the post is edited
// between the listing walk and comment hydration.
type Submission struct {
	// ID is the bare identifier without the "t3_" prefix.
	ID string `json:"id"`
	// Fullname is the prefixed identifier (e.g. "t3_abc123") used as the
	// parent reference for top-level comments and as the pagination token.
	Fullname    string    `json:"fullname"`
	Subreddit   string    `json:"subreddit"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Body        string    `json:"selftext"`
	CreatedUTC  time.Time `json:"created_utc"`
	Score       int       `json:"score"`
	Permalink   string    `json:"permalink"`
	URL         string    `json:"url"`
	NumComments int       `json:"num_comments"`
	Flair       string    `json:"link_flair_text,omitempty"`
	Stickied    bool      `json:"stickied,omitempty"`
}

// Comment is one node of a submission's comment tree. ParentID is the
// fullname of either the submission ("t3_...") for top-level comments or
// another comment ("t1_...").
type Comment struct {
	ID           string    `json:"id"`
	Fullname     string    `json:"fullname"`
	SubmissionID string    `json:"submission_id"`
	ParentID     string    `json:"parent_id"`
	Author       string    `json:"author"`
	Body         string    `json:"body"`
	CreatedUTC   time.Time `json:"created_utc"`
	Score        int       `json:"score"`
	// Depth is recomputed from the parent chain during hydration; the value
	// reported by the API is not trusted.
	Depth int `json:"depth"`
	// Deleted marks a tombstone: the comment was deleted or removed but is
	// retained so its descendants keep their place in the tree.
	Deleted bool `json:"deleted,omitempty"`
}

// Stub is a "more comments" placeholder: child comment IDs that must be
// fetched with a follow-up request before the tree is complete.
type Stub struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id"`
	ChildIDs []string `json:"child_ids"`
}

// Gap records a stub that could not be resolved before the attempt ceiling
// was reached. The tree is returned anyway with Complete=false.
type Gap struct {
	ParentID string   `json:"parent_id"`
	ChildIDs []string `json:"child_ids"`
	Reason   string   `json:"reason"`
}

// CommentTree is the full comment forest of one submission. Comments are
// ordered so that a parent always appears before (or with) its children.
type CommentTree struct {
	SubmissionID string     `json:"submission_id"`
	Comments     []*Comment `json:"comments"`
	Gaps         []Gap      `json:"gaps,omitempty"`
	// Complete is true only if every "more comments" stub was resolved
	// without error.
	Complete bool `json:"complete"`
}

// Window is the half-open UTC interval [Start, End) bounding which
// submissions are in scope.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects an empty or inverted window before any network activity.
func (w Window) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("invalid window: start %s is not before end %s",
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls inside the window. Start is inclusive,
// End is exclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Cursor identifies a listing page position: the opaque "after" token plus
// the timestamp of the last submission emitted, used to detect listing
// drift between page fetches.
type Cursor struct {
	After    string
	LastSeen time.Time
}

// RateInfo carries the quota signals returned alongside each API response.
// Callers feed it back into the rate limiter.
type RateInfo struct {
	// Remaining is the number of requests left in the current quota window,
	// from the X-Ratelimit-Remaining header. Negative when unknown.
	Remaining float64
	// ResetAt is when the quota window refreshes. Zero when unknown.
	ResetAt time.Time
}

// Known reports whether the response actually carried quota headers.
func (r RateInfo) Known() bool {
	return r.Remaining >= 0 && !r.ResetAt.IsZero()
}

// ListingPage is one page of a subreddit's newest-first submission listing.
type ListingPage struct {
	Items []*Submission
	// After is the pagination token for the next (older) page; empty at the
	// end of the listing.
	After string
	Rate  RateInfo
}

// CommentListing is the first comment page of a submission: the comments
// Reddit returned inline plus the stubs that still need resolving.
type CommentListing struct {
	Comments []*Comment
	Stubs    []Stub
	Rate     RateInfo
}

// MoreChildren is the result of resolving one stub. Resolution can itself
// surface further stubs.
type MoreChildren struct {
	Comments []*Comment
	Stubs    []Stub
	Rate     RateInfo
}
