// Package resilience guards lingocast's outbound provider calls.
//
// Every LLM and TTS backend sits behind a [CircuitBreaker]: a streak of
// failures trips the breaker, after which calls fail fast instead of piling
// onto a dead backend. Once the reset timeout passes, a handful of probe
// calls decide whether the backend has recovered. [FallbackGroup] chains
// several guarded backends of the same type so a request moves on to the
// next healthy one when the preferred backend is down.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker
// rejects the call: either the reset timeout has not elapsed yet, or all
// half-open probe slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call. This is the initial state.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after a
	// failure streak; left once the reset timeout elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls. All probes
	// succeeding closes the breaker; a single probe failure re-opens it.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < StateClosed || s > StateHalfOpen {
		return "unknown"
	}
	return stateNames[s]
}

// Breaker tuning defaults, applied for zero config fields.
const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
	defaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output, typically the backend name.
	Name string

	// MaxFailures is the length of the consecutive-failure streak that trips
	// the breaker. Default 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before probing
	// the backend again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls admitted per half-open phase,
	// and the number of successes required to close. Default 3.
	HalfOpenMax int
}

// CircuitBreaker implements the classic closed / open / half-open breaker.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu         sync.Mutex
	state      State
	failStreak int       // consecutive failures while closed
	openedAt   time.Time // when the breaker last tripped
	probeSent  int       // probes admitted in the current half-open phase
	probeOK    int       // probes that came back successfully
}

// NewCircuitBreaker creates a closed breaker. Zero config fields fall back to
// the package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = defaultHalfOpenMax
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn if the breaker admits the call and records its outcome.
// While the breaker is open, fn is not called and [ErrCircuitOpen] is
// returned. Otherwise the return value is whatever fn returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(probe, err)
	return err
}

// admit decides whether a call may proceed right now. probe reports whether
// the call occupies a half-open probe slot; the outcome must be handed back
// to observe with the same flag.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeSent = 0
		cb.probeOK = 0
		slog.Info("circuit breaker half-open, probing backend", "breaker", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.probeSent >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probeSent++
		return true, nil
	}
	return false, nil
}

// observe records the result of an admitted call.
func (cb *CircuitBreaker) observe(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if !probe {
			cb.failStreak = 0
			return
		}
		cb.probeOK++
		if cb.probeOK >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failStreak = 0
			slog.Info("circuit breaker closed, backend recovered", "breaker", cb.name)
		}
		return
	}

	if probe {
		cb.trip("probe failed")
		return
	}
	cb.failStreak++
	if cb.failStreak >= cb.maxFailures {
		cb.trip("failure streak")
	}
}

// trip opens the breaker and stamps the reset clock. Caller holds cb.mu.
func (cb *CircuitBreaker) trip(cause string) {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	slog.Warn("circuit breaker opened",
		"breaker", cb.name, "cause", cause, "failures", cb.failStreak)
}

// State reports the breaker's current state. An open breaker whose reset
// timeout has elapsed is reported as [StateHalfOpen]; the stored state only
// changes on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failStreak = 0
	cb.probeSent = 0
	cb.probeOK = 0
	slog.Info("circuit breaker reset", "breaker", cb.name)
}
