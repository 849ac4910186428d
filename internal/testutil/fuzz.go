// Package testutil holds shared helpers for the protocol fuzz tests.
package testutil

import (
	"testing"
	"time"
)

const (
	// MaxFuzzInput matches the largest frame the wire codec accepts;
	// anything bigger is rejected before a decoder ever sees it.
	MaxFuzzInput = 64 << 10

	// FuzzCaseTimeout bounds a single fuzz case. Decoding a capped
	// input is microseconds of work, so a blown timeout means a hang,
	// not a slow case.
	FuzzCaseTimeout = 100 * time.Millisecond
)

// Cap truncates a fuzz input to max bytes. max <= 0 leaves it alone.
func Cap(b []byte, max int) []byte {
	if max <= 0 || len(b) <= max {
		return b
	}
	return b[:max]
}

// GuardTimeout runs fn and fails the test if it does not finish in d.
func GuardTimeout(t testing.TB, d time.Duration, fn func()) {
	t.Helper()
	if d <= 0 {
		d = FuzzCaseTimeout
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("fuzz case did not finish within %s", d)
	}
}
