// Package filter applies the optional submission predicates: minimum
// score, flair allow-list, and keyword match. Filters run after the window
// check and before dedup, so filtered-out items never count as emitted.
package filter

import (
	"strings"

	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

// Options describes which predicates are active. The zero value accepts
// everything.
type Options struct {
	// MinScore drops submissions scored below it. Zero disables the check.
	MinScore int
	// Flairs is a case-insensitive allow-list of link flairs.
	Flairs []string
	// Keywords requires at least one case-insensitive match in the title or
	// selftext.
	Keywords []string
}

// Filter is a compiled set of predicates.
type Filter struct {
	minScore int
	flairs   map[string]struct{}
	keywords []string
}

// New compiles opts. Flair and keyword matching is case-insensitive.
func New(opts Options) *Filter {
	f := &Filter{minScore: opts.MinScore}
	if len(opts.Flairs) > 0 {
		f.flairs = make(map[string]struct{}, len(opts.Flairs))
		for _, fl := range opts.Flairs {
			f.flairs[strings.ToLower(strings.TrimSpace(fl))] = struct{}{}
		}
	}
	for _, kw := range opts.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			f.keywords = append(f.keywords, strings.ToLower(kw))
		}
	}
	return f
}

// Accept reports whether s passes every active predicate.
func (f *Filter) Accept(s *types.Submission) bool {
	if f.minScore != 0 && s.Score < f.minScore {
		return false
	}
	if f.flairs != nil {
		if _, ok := f.flairs[strings.ToLower(s.Flair)]; !ok {
			return false
		}
	}
	if len(f.keywords) > 0 {
		haystack := strings.ToLower(s.Title + "\n" + s.Body)
		matched := false
		for _, kw := range f.keywords {
			if strings.Contains(haystack, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
