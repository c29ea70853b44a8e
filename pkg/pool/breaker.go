package pool

import (
	"sync"
	"time"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// CircuitBreaker is a per-server fast-fail gate: CLOSED allows all
// requests, OPEN rejects all requests until openTimeout elapses, and
// HALF_OPEN allows a bounded number of trial requests to decide whether
// to close again or re-open.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration
	halfOpenMaxCalls int

	state         ucp.BreakerState
	failureCount  int
	halfOpenCalls int
	openedAt      time.Time
}

// NewCircuitBreaker constructs a breaker with the given failure threshold
// and open-state timeout. The half-open trial count starts at 3;
// WithHalfOpenMaxCalls changes it.
func NewCircuitBreaker(failureThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		halfOpenMaxCalls: 3,
		state:            ucp.BreakerClosed,
	}
}

// WithHalfOpenMaxCalls overrides the default half-open trial count.
func (b *CircuitBreaker) WithHalfOpenMaxCalls(n int) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.halfOpenMaxCalls = n
	}
	return b
}

// CanAttempt reports whether a new call may proceed, transitioning
// OPEN -> HALF_OPEN if openTimeout has elapsed.
func (b *CircuitBreaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case ucp.BreakerClosed:
		return true
	case ucp.BreakerOpen:
		if time.Since(b.openedAt) >= b.openTimeout {
			b.state = ucp.BreakerHalfOpen
			b.halfOpenCalls = 0
			return true
		}
		return false
	case ucp.BreakerHalfOpen:
		return b.halfOpenCalls < b.halfOpenMaxCalls
	default:
		return false
	}
}

// RecordSuccess registers a successful call, resetting the failure
// counter, or — in HALF_OPEN — closing the breaker once enough trial
// calls have succeeded.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case ucp.BreakerClosed:
		b.failureCount = 0
	case ucp.BreakerHalfOpen:
		b.halfOpenCalls++
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			b.state = ucp.BreakerClosed
			b.failureCount = 0
			b.halfOpenCalls = 0
		}
	case ucp.BreakerOpen:
		// A success recorded while OPEN (e.g. racing the timeout) is ignored.
	}
}

// RecordFailure registers a failed call, opening the breaker once
// failureThreshold consecutive failures (or any half-open failure) has
// been reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case ucp.BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.trip()
		}
	case ucp.BreakerHalfOpen:
		b.trip()
	case ucp.BreakerOpen:
		// Already open; restart the timer so a stray failure doesn't
		// shorten the remaining wait.
		b.openedAt = time.Now()
	}
}

func (b *CircuitBreaker) trip() {
	b.state = ucp.BreakerOpen
	b.openedAt = time.Now()
	b.halfOpenCalls = 0
}

// GetState returns the current breaker state.
func (b *CircuitBreaker) GetState() ucp.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetFailureCount returns the current consecutive-failure count.
func (b *CircuitBreaker) GetFailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
