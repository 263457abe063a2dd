// Package crawlerr defines the error kinds produced by the crawl pipeline
// and the classification helpers the pipeline uses to decide between retry,
// skip, and escalation.
package crawlerr

import (
	"errors"
	"fmt"
)

// WindowError indicates an invalid date window (start at or after end).
// It is raised before any network activity.
type WindowError struct {
	Message string
}

func (e *WindowError) Error() string {
	return "window error: " + e.Message
}

// TransientError indicates a network or 5xx-class failure that may succeed
// on retry. Throttled marks the HTTP 429 case, which additionally drives
// the rate limiter into backoff.
type TransientError struct {
	// Operation is the API call that failed (e.g. "list submissions").
	Operation string
	// StatusCode is the HTTP status, if the failure came from a response.
	StatusCode int
	Throttled  bool
	Err        error
}

func (e *TransientError) Error() string {
	msg := fmt.Sprintf("transient error during %s", e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MalformedError indicates a response with an unexpected shape. The
// offending item is skipped and logged; the walk continues.
type MalformedError struct {
	Operation string
	Message   string
	Err       error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("malformed response during %s: %s", e.Operation, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// StubError indicates that resolving "more comments" stubs exhausted the
// per-submission attempt ceiling. Non-fatal: the tree is returned with
// Complete=false and a gap marker.
type StubError struct {
	SubmissionID string
	Attempts     int
	Err          error
}

func (e *StubError) Error() string {
	msg := fmt.Sprintf("stub resolution exhausted for %s after %d attempts", e.SubmissionID, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StubError) Unwrap() error {
	return e.Err
}

// SubredditError indicates the listing walk for one subreddit failed past
// its retry budget. Fatal for that subreddit only; the run continues and
// reports it in the summary.
type SubredditError struct {
	Subreddit string
	Err       error
}

func (e *SubredditError) Error() string {
	return fmt.Sprintf("subreddit %s failed: %v", e.Subreddit, e.Err)
}

func (e *SubredditError) Unwrap() error {
	return e.Err
}

// ErrBackoffCeiling is returned by the rate limiter when a single acquire
// has accumulated more backoff time than the configured hard ceiling. The
// caller treats the request as transiently failed.
var ErrBackoffCeiling = errors.New("rate limit backoff ceiling exceeded")

// IsRetryable reports whether err is worth retrying with the same cursor or
// stub: transient fetch failures, throttling, and backoff-ceiling aborts.
func IsRetryable(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrBackoffCeiling)
}

// IsThrottled reports whether err carries an explicit rate-limited signal.
func IsThrottled(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.Throttled
}
