package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is the fail-fast error an open breaker hands back
// instead of calling the dependency.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets requests through and counts failures.
	StateClosed State = iota
	// StateOpen rejects requests until the reset window passes.
	StateOpen
	// StateHalfOpen lets a single probe through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast once a dependency has failed repeatedly.
// The feed downloader keeps one per feed host so a dead host is
// rejected up front instead of eating the full download timeout on
// every scheduler cycle.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.RWMutex
	state    State
	failures int
	openedAt time.Time
}

// CircuitBreakerOption customizes a breaker at construction time.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many failures in a row open the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.maxFailures = n
	}
}

// WithResetTimeout sets how long the circuit stays open before a
// recovery probe is allowed.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.resetTimeout = d
	}
}

// NewCircuitBreaker creates a closed breaker named after what it
// guards. Defaults: 5 failures, 30 second reset window.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State reports the effective state, surfacing half-open once an open
// breaker's reset window has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.effective()
}

// effective folds the reset window into the stored state. Callers hold
// at least the read lock.
func (cb *CircuitBreaker) effective() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a request may go through right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.effective() != StateOpen
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure counts one failure, opening the breaker at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.trip()
	}
}

// trip opens the breaker and restarts the reset window. Callers hold
// the write lock.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
}

// Execute runs fn under the breaker: rejected outright when open, a
// recovery probe when half-open, counted normally when closed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.effective() {
	case StateOpen:
		cb.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	if err := fn(); err != nil {
		cb.mu.Lock()
		if cb.state == StateHalfOpen {
			cb.trip()
		} else {
			cb.failures++
			if cb.failures >= cb.maxFailures {
				cb.trip()
			}
		}
		cb.mu.Unlock()
		return err
	}

	cb.RecordSuccess()
	return nil
}
