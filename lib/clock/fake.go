// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. Time advances only
// through Advance; timers, tickers, and sleeps fire when the clock
// passes their deadline.
type FakeClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current time.Time
	waiters []*fakeWaiter
}

// fakeWaiter is a pending After, Sleep, or Ticker operation.
type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers: after firing, the waiter is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock advances past
// duration d from now. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	return channel
}

// NewTicker returns a Ticker that fires every time the clock advances
// past another interval boundary.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  make(chan time.Time, 1),
		interval: d,
	}
	c.waiters = append(c.waiters, waiter)
	return &Ticker{
		C: waiter.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past
// duration d from now.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	deadline := c.current.Add(d)
	for c.current.Before(deadline) {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// Advance moves the fake time forward by d, firing every waiter whose
// deadline falls inside the advanced window in deadline order. Ticker
// waiters fire once per elapsed interval (with capacity-1 drop
// semantics matching time.Ticker).
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)

	for {
		// Find the earliest un-fired waiter that is due; firing in
		// deadline order keeps ticker reschedules deterministic.
		sort.SliceStable(c.waiters, func(i, j int) bool {
			return c.waiters[i].deadline.Before(c.waiters[j].deadline)
		})
		fired := false
		for _, waiter := range c.waiters {
			if waiter.stopped || waiter.fired || waiter.deadline.After(c.current) {
				continue
			}
			select {
			case waiter.channel <- waiter.deadline:
			default:
				// Consumer fell behind; drop the tick.
			}
			if waiter.interval > 0 {
				waiter.deadline = waiter.deadline.Add(waiter.interval)
			} else {
				waiter.fired = true
			}
			fired = true
			break
		}
		if !fired {
			break
		}
	}

	// Drop completed one-shot waiters and stopped tickers.
	kept := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.fired && !waiter.stopped {
			kept = append(kept, waiter)
		}
	}
	c.waiters = kept

	c.cond.Broadcast()
}
