package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed reports that every backend in a [FallbackGroup] either failed
// or was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the circuit breaker created for each backend in
// a [FallbackGroup]. The zero value uses the breaker defaults.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// guard pairs one backend with the breaker watching it.
type guard[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary backend with ordered fallbacks of the same
// type, each behind its own [CircuitBreaker]. Calls walk the chain until a
// healthy backend answers.
//
// The chain must be assembled before use; afterwards a FallbackGroup is safe
// for concurrent use.
type FallbackGroup[T any] struct {
	chain      []guard[T]
	breakerCfg CircuitBreakerConfig
}

// NewFallbackGroup starts a chain with primary as its first backend.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{breakerCfg: cfg.CircuitBreaker}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, backend T) {
	fg.add(name, backend)
}

func (fg *FallbackGroup[T]) add(name string, backend T) {
	cbCfg := fg.breakerCfg
	cbCfg.Name = name
	fg.chain = append(fg.chain, guard[T]{
		name:    name,
		backend: backend,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// names lists the chain's backends in call order.
func (fg *FallbackGroup[T]) names() []string {
	out := make([]string, len(fg.chain))
	for i := range fg.chain {
		out[i] = fg.chain[i].name
	}
	return out
}

// Available reports whether at least one breaker in the chain would admit a
// call. Readiness probes use this: a chain whose breakers are all open
// rejects every call until a reset timeout expires.
func (fg *FallbackGroup[T]) Available() bool {
	for i := range fg.chain {
		if fg.chain[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute walks the chain until fn succeeds against one backend. Backends
// with open breakers are skipped. When the whole chain fails, the returned
// error wraps [ErrAllFailed] around the last failure.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(backend T) (struct{}, error) {
		return struct{}{}, fn(backend)
	})
	return err
}

// ExecuteWithResult walks the chain until fn succeeds and returns its result.
// It is a package-level function because methods cannot introduce their own
// type parameters.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.chain {
		g := &fg.chain[i]
		var result R
		err := g.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(g.backend)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, breaker open", "backend", g.name)
		} else {
			slog.Warn("backend failed, trying next in chain", "backend", g.name, "err", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
