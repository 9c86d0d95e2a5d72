package notify

import (
	"sync"
	"time"
)

type breakerState int

// States are numbered to match the breaker gauge encoding.
const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

const (
	breakerThreshold    = 5
	breakerBaseInterval = 60 * time.Second
	breakerMaxInterval  = 10 * time.Minute
)

// breaker is a per-endpoint circuit breaker. It trips open after
// breakerThreshold consecutive failures, stays open for an interval that
// doubles on every failed half-open trial up to breakerMaxInterval, and
// admits exactly one trial request per half-open window.
type breaker struct {
	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	openFor  time.Duration
	trialed  bool
	now      func() time.Time
}

func newBreaker(now func() time.Time) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{openFor: breakerBaseInterval, now: now}
}

// allow reports whether a request may be attempted now. Moving from open to
// half-open happens here, and the single half-open trial is claimed by the
// caller that sees true.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.state = breakerHalfOpen
		b.trialed = true
		return true
	default: // half-open
		if b.trialed {
			return false
		}
		b.trialed = true
		return true
	}
}

// success closes the breaker and resets the open interval.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.openFor = breakerBaseInterval
	b.trialed = false
}

// failure records one failed attempt. The caller must have been admitted by
// allow, so the breaker is either closed or trialing half-open.
func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= breakerThreshold {
			b.state = breakerOpen
			b.openedAt = b.now()
			b.openFor = breakerBaseInterval
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = b.now()
		b.openFor = min(2*b.openFor, breakerMaxInterval)
		b.trialed = false
	}
}

// current returns the state for the metrics gauge.
func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
