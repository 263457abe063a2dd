// Package dedup tracks the submission and comment identifiers already
// emitted during one crawl run. Overlapping listing pages and retried
// fetches can return the same item twice; the registry makes emission
// exactly-once. State is in-memory and discarded at run end.
package dedup

import "sync"

// Registry is safe for concurrent use. One instance is shared by every
// concurrent path of a run.
type Registry struct {
	mu          sync.Mutex
	submissions map[string]struct{}
	comments    map[commentKey]struct{}
}

type commentKey struct {
	submissionID string
	commentID    string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		submissions: make(map[string]struct{}),
		comments:    make(map[commentKey]struct{}),
	}
}

// SeenSubmission reports whether id was already marked.
func (r *Registry) SeenSubmission(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.submissions[id]
	return ok
}

// MarkSubmission records id. Returns false if it was already present, so
// callers can test-and-set in one step.
func (r *Registry) MarkSubmission(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[id]; ok {
		return false
	}
	r.submissions[id] = struct{}{}
	return true
}

// MarkComment records the (submission, comment) pair. Returns false if the
// pair was already present.
func (r *Registry) MarkComment(submissionID, commentID string) bool {
	key := commentKey{submissionID, commentID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.comments[key]; ok {
		return false
	}
	r.comments[key] = struct{}{}
	return true
}

// Counts returns how many submissions and comments have been marked.
func (r *Registry) Counts() (submissions, comments int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions), len(r.comments)
}
