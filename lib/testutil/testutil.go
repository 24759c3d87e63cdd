// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so individual
// tests never hang forever on a channel that nothing will write.
// These helpers are the only place the test suite touches the real
// wall clock; everything else runs on clock.Fake.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: message bodies and peer names that must be
// distinguishable when several sessions share one host.
//
// All helpers call t.Fatalf on failure: test setup failures are not
// recoverable.
package testutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TB is the subset of testing.TB the helpers need. Taking an interface
// keeps the helpers usable from both tests and benchmarks.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	msg := testutil.RequireReceive(t, received, 5*time.Second, "waiting for broadcast")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed (or receive a value) within
// timeout, or fails the test. Use for readiness/teardown channels that
// signal by closing.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N monotonically increasing across
// the whole test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// formatMessage formats optional message arguments: a single string, a
// format string plus args, or nothing.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
