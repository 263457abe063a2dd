package crawlerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &TransientError{Operation: "list submissions", StatusCode: 502}, true},
		{"throttled transient", &TransientError{Operation: "list submissions", StatusCode: 429, Throttled: true}, true},
		{"wrapped transient", fmt.Errorf("fetch: %w", &TransientError{Operation: "x"}), true},
		{"backoff ceiling", ErrBackoffCeiling, true},
		{"malformed", &MalformedError{Operation: "parse", Message: "bad shape"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsThrottled(t *testing.T) {
	t.Parallel()

	if !IsThrottled(&TransientError{StatusCode: 429, Throttled: true}) {
		t.Error("429 transient should be throttled")
	}
	if IsThrottled(&TransientError{StatusCode: 502}) {
		t.Error("plain transient should not be throttled")
	}
	if IsThrottled(errors.New("boom")) {
		t.Error("plain error should not be throttled")
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Parallel()

	inner := errors.New("connection reset")
	err := &SubredditError{Subreddit: "golang", Err: &TransientError{Operation: "list submissions", Err: inner}}
	if !errors.Is(err, inner) {
		t.Error("SubredditError should unwrap to the root cause")
	}
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Error("SubredditError should expose the transient error via As")
	}
}
