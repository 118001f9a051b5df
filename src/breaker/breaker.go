// Package breaker tracks consecutive failures of one external dependency and
// decides whether calls to it are currently permitted.
package breaker

import (
	"sync"
	"time"

	"freeda-support/src/clock"
)

// State is the circuit state of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets State render as its name in JSON health payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds breaker thresholds.
type Config struct {
	// Consecutive failures that open the circuit.
	FailureThreshold int
	// How long the circuit stays open before a trial call is allowed.
	RecoveryWindow time.Duration
}

// DefaultConfig returns a threshold of 5 failures and a 60s recovery window.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryWindow:   60 * time.Second,
	}
}

// Snapshot is a point-in-time view of a breaker for health reporting.
type Snapshot struct {
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker guards one logical dependency. Concurrent callers share a
// single instance; all methods are serialized by an internal mutex.
type CircuitBreaker struct {
	mu    sync.Mutex
	cfg   Config
	clock clock.Clock

	state        State
	failureCount int
	lastFailure  time.Time
	// trialStarted is set while the single half-open trial is out.
	trialStarted time.Time
}

// New creates a closed breaker. A nil clock uses the real clock.
func New(cfg Config, clk clock.Clock) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = DefaultConfig().RecoveryWindow
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &CircuitBreaker{cfg: cfg, clock: clk, state: StateClosed}
}

// CanExecute reports whether a call may proceed. An open circuit whose
// recovery window has elapsed moves to half-open and admits exactly one
// trial call. Further calls are refused until the trial records its outcome,
// or until a recovery window passes without one, in which case the next
// caller becomes the trial.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if !b.trialStarted.IsZero() && now.Sub(b.trialStarted) <= b.cfg.RecoveryWindow {
			return false
		}
		b.trialStarted = now
		return true
	case StateOpen:
		if now.Sub(b.lastFailure) > b.cfg.RecoveryWindow {
			b.state = StateHalfOpen
			b.trialStarted = now
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = StateClosed
	b.trialStarted = time.Time{}
}

// RecordFailure counts a failure and opens the circuit once the threshold is
// reached. A failed trial call in half-open re-opens it immediately since the
// count is still at or above the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.clock.Now()
	b.trialStarted = time.Time{}
	if b.failureCount >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
}

// State returns the current state without side effects.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the state, failure count and last failure time.
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:        b.state,
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}
