// Package ratelimit provides sliding-window admission control for scoring runs.
//
// A Limiter keeps, per key, the timestamps of admitted requests inside the
// current window. A request is admitted iff fewer than limit timestamps remain
// after dropping those older than now-window; only admitted requests are
// recorded, so a throttled caller does not extend its own lockout.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Backend is a shared admission counter. Implementations must be safe for
// concurrent use and must not block past ctx.
type Backend interface {
	AllowContext(ctx context.Context, key string, limit int, window time.Duration) bool
}

// Limiter is the in-process sliding-window backend.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	maxWindow time.Duration
	now       func() time.Time
}

// New creates an in-memory limiter.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a limiter that reads time from now.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		now:     now,
	}
}

// Allow reports whether a request for key is admitted under limit per window.
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if window > l.maxWindow {
		l.maxWindow = window
	}

	ts := trim(l.windows[key], cutoff)
	if len(ts) >= limit {
		l.windows[key] = ts
		return false
	}
	l.windows[key] = append(ts, now)
	return true
}

// AllowContext implements Backend. The in-memory check never blocks.
func (l *Limiter) AllowContext(_ context.Context, key string, limit int, window time.Duration) bool {
	return l.Allow(key, limit, window)
}

// Count returns how many admitted requests for key fall inside window.
func (l *Limiter) Count(key string, window time.Duration) int {
	cutoff := l.now().Add(-window)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.windows[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Prune drops timestamps older than the widest window seen so far and
// removes keys left empty. It returns the number of keys removed.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.maxWindow)
	removed := 0
	for key, ts := range l.windows {
		ts = trim(ts, cutoff)
		if len(ts) == 0 {
			delete(l.windows, key)
			removed++
			continue
		}
		l.windows[key] = ts
	}
	return removed
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run prunes stale keys every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// trim drops the prefix of ts at or before cutoff. ts is ascending.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
