// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects [Real]; tests inject [Fake] and advance it deterministically.
//
// The room expiry timer and the admission rate-limit window are the
// two time-dependent subsystems; both take a Clock instead of calling
// the time package directly, so their tests never sleep.
package clock

import "time"

// Clock is the time source injected into time-dependent components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. Equivalent to time.After.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks at the given
	// interval. Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop to
// release resources. C has capacity 1: if the consumer falls behind,
// ticks are dropped rather than queued, matching time.Ticker.
type Ticker struct {
	// C delivers ticks.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No more ticks are sent on C after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
