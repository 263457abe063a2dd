// Package window classifies submission timestamps against the crawl's date
// window and tells the listing walker when to stop paging.
package window

import (
	"time"

	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

// Class is the position of a timestamp relative to the window.
type Class int

const (
	// Before means strictly older than the window start. Listings are
	// reverse-chronological, so the walker stops paging on the first Before.
	Before Class = iota
	// Inside means the submission should be emitted.
	Inside
	// After means at or past the window end. Skipped, but paging continues:
	// pinned and stickied items can interleave out of order near the top of
	// a listing.
	After
)

func (c Class) String() string {
	switch c {
	case Before:
		return "before"
	case Inside:
		return "inside"
	case After:
		return "after"
	default:
		return "unknown"
	}
}

// Classify places t relative to w. Start is inclusive, end is exclusive: a
// submission exactly at w.Start is Inside, exactly at w.End is After.
func Classify(t time.Time, w types.Window) Class {
	if t.Before(w.Start) {
		return Before
	}
	if t.Before(w.End) {
		return Inside
	}
	return After
}
