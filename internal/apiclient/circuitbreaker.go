package apiclient

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the API while a data
// source's breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled bool
	// FailureThreshold consecutive failures open the breaker
	FailureThreshold int
	// RecoveryTimeout is how long an open breaker rejects fetches
	RecoveryTimeout time.Duration
	// HalfOpenMaxRequests trial fetches must all succeed to close it again
	HalfOpenMaxRequests int
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 2
	}
	return c
}

type breakerState uint8

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

var breakerStateNames = [...]string{
	breakerClosed:   "closed",
	breakerOpen:     "open",
	breakerHalfOpen: "half-open",
}

func (s breakerState) String() string { return breakerStateNames[s] }

// IsFailure reports whether a fetch outcome counts against the data source.
// Transport errors and 5xx answers do; a 4xx is the API answering about the
// request itself and nil is a success.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError()
	}
	return true
}

// CircuitBreaker stops fetching one data source after consecutive failures.
//
// Closed: every fetch is let through and FailureThreshold failures in a row
// open it. Open: fetches fail with ErrCircuitOpen until RecoveryTimeout has
// passed since it opened. Half-open: at most HalfOpenMaxRequests trial
// fetches are admitted; if all of them succeed the breaker closes, the first
// failure opens it again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    breakerState
	streak   int // failures while closed, successes while half-open
	admitted int // trial fetches let through while half-open
	openedAt time.Time
}

// NewCircuitBreaker creates a closed CircuitBreaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Allow returns ErrCircuitOpen when a fetch must not be made. Every nil
// return has to be followed by exactly one Done.
func (cb *CircuitBreaker) Allow() error {
	if !cb.cfg.Enabled {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.moveTo(breakerHalfOpen)
	}

	switch cb.state {
	case breakerOpen:
		return ErrCircuitOpen
	case breakerHalfOpen:
		if cb.admitted >= cb.cfg.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.admitted++
	}
	return nil
}

// Done records the outcome of a fetch that Allow let through, classified
// with IsFailure
func (cb *CircuitBreaker) Done(err error) {
	if !cb.cfg.Enabled {
		return
	}
	failed := IsFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case cb.state == breakerHalfOpen && failed:
		cb.moveTo(breakerOpen)
	case cb.state == breakerHalfOpen:
		cb.streak++
		if cb.streak >= cb.cfg.HalfOpenMaxRequests {
			cb.moveTo(breakerClosed)
		}
	case cb.state == breakerClosed && failed:
		cb.streak++
		if cb.streak >= cb.cfg.FailureThreshold {
			cb.moveTo(breakerOpen)
		}
	case cb.state == breakerClosed:
		cb.streak = 0
	}
}

// moveTo switches state and resets the counters. Callers hold mu.
func (cb *CircuitBreaker) moveTo(s breakerState) {
	cb.state = s
	cb.streak = 0
	cb.admitted = 0
	if s == breakerOpen {
		cb.openedAt = cb.now()
	}
}

// State returns the current state name
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}
