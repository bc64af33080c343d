package lookup

import (
	"sync"
	"time"

	"travelguard/antifraud/internal/metrics"
)

// BreakerState is a provider breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls flow
	BreakerOpen                         // provider skipped
	BreakerHalfOpen                     // one trial call in flight
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type breakerEntry struct {
	state    BreakerState
	failures int
	openedAt time.Time
}

// Breaker skips providers that keep failing. After threshold consecutive
// failures a provider is skipped for openFor, then a single trial call is allowed;
// its outcome closes or reopens it.
type Breaker struct {
	mu        sync.Mutex
	entries   map[string]*breakerEntry
	threshold int
	openFor   time.Duration
	now       func() time.Time
}

// NewBreaker creates a breaker. Non-positive arguments fall back to 5 and 30s.
func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		entries:   make(map[string]*breakerEntry),
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

// Allow reports whether provider may be called now.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		return true
	}
	switch e.state {
	case BreakerOpen:
		if b.now().Sub(e.openedAt) >= b.openFor {
			b.transition(provider, e, BreakerHalfOpen)
			return true
		}
		return false
	case BreakerHalfOpen:
		return false
	default:
		return true
	}
}

// Success resets the failure count and closes a probing provider.
func (b *Breaker) Success(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		return
	}
	e.failures = 0
	b.transition(provider, e, BreakerClosed)
}

// Failure counts a failed call and opens the breaker at the threshold.
func (b *Breaker) Failure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		e = &breakerEntry{}
		b.entries[provider] = e
	}
	e.failures++

	switch {
	case e.state == BreakerHalfOpen:
		e.openedAt = b.now()
		b.transition(provider, e, BreakerOpen)
	case e.state == BreakerClosed && e.failures >= b.threshold:
		e.openedAt = b.now()
		b.transition(provider, e, BreakerOpen)
	}
}

// Abandon returns a call that ended without a verdict, such as one cut short
// by its caller. Failure counts are untouched; a probing provider goes back
// to open with its old open time, so the next call is let through again.
func (b *Breaker) Abandon(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[provider]; ok && e.state == BreakerHalfOpen {
		b.transition(provider, e, BreakerOpen)
	}
}

// State returns the provider's state; unknown providers are closed.
func (b *Breaker) State(provider string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[provider]; ok {
		return e.state
	}
	return BreakerClosed
}

// transition requires b.mu.
func (b *Breaker) transition(provider string, e *breakerEntry, to BreakerState) {
	if e.state == to {
		return
	}
	metrics.ProviderTransitionsTotal.WithLabelValues(provider, e.state.String(), to.String()).Inc()
	e.state = to
}
