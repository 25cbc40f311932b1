package leasesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "dial tcp: i/o timeout" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return e.timeout }

func TestIsRetrievalTimeout(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("fetching residents: %w", context.DeadlineExceeded), true},
		{"network timeout", fakeNetError{timeout: true}, true},
		{"wrapped network timeout", fmt.Errorf("fetching residents: %w", fakeNetError{timeout: true}), true},
		{"network error without timeout", fakeNetError{}, false},
		{"plain error", errors.New("401 unauthorized"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetrievalTimeout(tc.err); got != tc.expected {
				t.Fatalf("isRetrievalTimeout(%v) expected %v, got %v", tc.err, tc.expected, got)
			}
		})
	}
}
