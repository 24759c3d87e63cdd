// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"
	"time"

	"github.com/xzyqiu/TermTalk/lib/clock"
)

// Rate-limit window parameters: at most rateLimitAttempts accepted
// connection attempts per source IP within the trailing
// rateLimitWindow.
const (
	rateLimitWindow   = 60 * time.Second
	rateLimitAttempts = 10
)

// admission is the host's connection-admission state: live counts,
// per-source attempt history, and the permanent ban set. All checks
// and mutations happen under one mutex so that a ban decided by the
// password gate is immediately visible to the accept path, and a
// check-then-add never races.
type admission struct {
	mu sync.Mutex

	clock          clock.Clock
	maxConnections int
	maxPerSource   int

	total     int
	perSource map[string]int
	attempts  map[string][]time.Time
	banned    map[string]struct{}
}

func newAdmission(maxConnections, maxPerSource int, c clock.Clock) *admission {
	return &admission{
		clock:          c,
		maxConnections: maxConnections,
		maxPerSource:   maxPerSource,
		perSource:      make(map[string]int),
		attempts:       make(map[string][]time.Time),
		banned:         make(map[string]struct{}),
	}
}

// admit evaluates the accept pipeline for one incoming connection from
// ip, in order: ban set, global cap, per-source cap, rate window. On
// success it records the attempt timestamp and increments both
// counters; the caller must pair every true return with a release.
func (a *admission) admit(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isBanned := a.banned[ip]; isBanned {
		return false
	}
	if a.total >= a.maxConnections {
		return false
	}
	if a.perSource[ip] >= a.maxPerSource {
		return false
	}

	now := a.clock.Now()
	recent := pruneWindow(a.attempts[ip], now.Add(-rateLimitWindow))
	if len(recent) >= rateLimitAttempts {
		a.attempts[ip] = recent
		return false
	}

	a.attempts[ip] = append(recent, now)
	a.perSource[ip]++
	a.total++
	return true
}

// release undoes admit's counter increments when a connection ends.
func (a *admission) release(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.perSource[ip] > 0 {
		a.perSource[ip]--
		if a.perSource[ip] == 0 {
			delete(a.perSource, ip)
		}
	}
	if a.total > 0 {
		a.total--
	}
}

// ban adds ip to the permanent ban set. There is no unban for the
// lifetime of the endpoint.
func (a *admission) ban(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.banned[ip] = struct{}{}
}

// isBanned reports whether ip is in the ban set.
func (a *admission) isBanned(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, found := a.banned[ip]
	return found
}

// pruneWindow drops timestamps at or before cutoff. The slice is
// ordered oldest-first, so the first retained index bounds the rest.
func pruneWindow(stamps []time.Time, cutoff time.Time) []time.Time {
	for index, stamp := range stamps {
		if stamp.After(cutoff) {
			return stamps[index:]
		}
	}
	return nil
}
