package audit

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

// CircuitBreaker gates best-effort writes while the audit store is failing.
// After threshold consecutive failures it opens for cooldown; then a single
// trial write decides whether it closes again or reopens.
type CircuitBreaker struct {
	mu  sync.Mutex
	now func() time.Time

	threshold int
	cooldown  time.Duration

	state     breakerState
	failures  int
	openUntil time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a write may be attempted. Only one trial write is let
// through once the cooldown has elapsed; others are refused until it reports.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerClosed {
		return true
	}
	// An unanswered trial write expires after another cooldown.
	now := cb.now()
	if now.Before(cb.openUntil) {
		return false
	}
	cb.state = breakerProbing
	cb.openUntil = now.Add(cb.cooldown)
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = breakerClosed
	cb.failures = 0
}

// RecordFailure counts a failed write. A failed trial write reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == breakerProbing || cb.failures >= cb.threshold {
		cb.state = breakerOpen
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
}

// IsOpen reports whether writes are currently refused or on probation.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state != breakerClosed
}
