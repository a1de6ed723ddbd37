// Package http provides the resilience plumbing shared by the tiers: a page
// fetcher with retry and rate limiting, and a circuit breaker.
package http

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the state of one named circuit.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls without running them.
	CircuitOpen
)

// String returns "closed" or "open".
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

const (
	// DefaultFailureThreshold is the run of failures that opens a circuit.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long an open circuit rejects calls.
	DefaultRecoveryTimeout = 60 * time.Second
)

// ErrCircuitOpen is returned for calls rejected by an open circuit.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// circuit. Default: 5
	FailureThreshold int
	// RecoveryTimeout is how long a circuit stays open. Default: 60s
	RecoveryTimeout time.Duration
	// IsFailure decides whether an error counts against the circuit.
	// Errors it rejects leave the state untouched. If nil, every error counts.
	IsFailure func(error) bool
	// Now returns the current time. Default: time.Now
	Now func() time.Time
	// OnStateChange is called, outside the lock, when a circuit opens or closes.
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the default thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
	}
}

// CircuitStats is a point-in-time view of one circuit.
type CircuitStats struct {
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	OpenedAt    time.Time    `json:"opened_at,omitzero"`
	LastFailure time.Time    `json:"last_failure,omitzero"`
}

type circuit struct {
	open        bool
	failures    int
	openedAt    time.Time
	lastFailure time.Time
}

// CircuitBreaker keeps independent named circuits. The service names them
// after operations and the page fetcher after hosts.
//
// A circuit opens after FailureThreshold consecutive failures. Once
// RecoveryTimeout has passed since it opened, the next call closes it and
// runs; its outcome starts a fresh count. There is no half-open state.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	circuits map[string]*circuit
}

// NewCircuitBreaker returns a breaker with every circuit closed.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, circuits: make(map[string]*circuit)}
}

// Execute runs fn inside the named circuit. While the circuit is open fn is
// not called and ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Execute(name string, fn func() error) error {
	if err := cb.Allow(name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure(name, err)
		return err
	}
	cb.RecordSuccess(name)
	return nil
}

// Allow returns ErrCircuitOpen while the named circuit rejects calls. An
// open circuit whose recovery timeout has elapsed is closed here.
func (cb *CircuitBreaker) Allow(name string) error {
	if cb == nil {
		return nil
	}

	cb.mu.Lock()
	c := cb.circuits[name]
	if c == nil || !c.open {
		cb.mu.Unlock()
		return nil
	}
	if !cb.recovered(c) {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	c.open = false
	c.failures = 0
	cb.mu.Unlock()

	cb.notify(name, CircuitOpen, CircuitClosed)
	return nil
}

// RecordSuccess clears the failure run of a closed circuit.
func (cb *CircuitBreaker) RecordSuccess(name string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c := cb.circuits[name]; c != nil && !c.open {
		c.failures = 0
	}
}

// RecordFailure counts err against the named circuit unless IsFailure
// rejects it, opening the circuit when the threshold is reached.
func (cb *CircuitBreaker) RecordFailure(name string, err error) {
	if cb == nil {
		return
	}
	if cb.cfg.IsFailure != nil && !cb.cfg.IsFailure(err) {
		return
	}

	cb.mu.Lock()
	c := cb.circuits[name]
	if c == nil {
		c = &circuit{}
		cb.circuits[name] = c
	}
	if c.open {
		cb.mu.Unlock()
		return
	}
	now := cb.cfg.Now()
	c.failures++
	c.lastFailure = now
	tripped := c.failures >= cb.cfg.FailureThreshold
	if tripped {
		c.open = true
		c.openedAt = now
	}
	cb.mu.Unlock()

	if tripped {
		cb.notify(name, CircuitClosed, CircuitOpen)
	}
}

// State returns the state of the named circuit. An open circuit past its
// recovery timeout reports closed, since the next call will run.
func (cb *CircuitBreaker) State(name string) CircuitState {
	return cb.Stats(name).State
}

// Stats returns a view of the named circuit.
func (cb *CircuitBreaker) Stats(name string) CircuitStats {
	if cb == nil {
		return CircuitStats{}
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuits[name]
	if c == nil {
		return CircuitStats{}
	}
	st := CircuitStats{
		Failures:    c.failures,
		OpenedAt:    c.openedAt,
		LastFailure: c.lastFailure,
	}
	if c.open && !cb.recovered(c) {
		st.State = CircuitOpen
	}
	return st
}

// Reset forgets the named circuit.
func (cb *CircuitBreaker) Reset(name string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	delete(cb.circuits, name)
	cb.mu.Unlock()
}

// ResetAll forgets every circuit.
func (cb *CircuitBreaker) ResetAll() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	clear(cb.circuits)
	cb.mu.Unlock()
}

// recovered must be called with the mutex held.
func (cb *CircuitBreaker) recovered(c *circuit) bool {
	return cb.cfg.Now().Sub(c.openedAt) >= cb.cfg.RecoveryTimeout
}

func (cb *CircuitBreaker) notify(name string, from, to CircuitState) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(name, from, to)
	}
}
