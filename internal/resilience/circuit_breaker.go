// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience provides the circuit breaker guarding calls to the
// language model backend.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker opens after a run of consecutive failures and rejects calls
// until the reset timeout has passed. A single probe is then let through:
// success closes the breaker, failure opens it again.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	clock        clock
	isFailure    func(error) bool
	logger       zerolog.Logger
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailureClassifier decides which errors count against the breaker.
// Errors it rejects are returned to the caller without tripping.
func WithFailureClassifier(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.isFailure = fn
		}
	}
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:         name,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
		isFailure:    defaultIsFailure,
		logger:       xglog.WithComponent("breaker").With().Str("breaker", name).Logger(),
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetCircuitBreakerState(cb.name, string(cb.state))
	return cb
}

// defaultIsFailure ignores cancellation by the caller.
func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, ok := cb.allowRequest()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		cb.recordSuccess()
	case cb.isFailure(err):
		cb.recordFailure()
	default:
		cb.releaseProbe(probe)
	}
	return err
}

// allowRequest reports whether a call may proceed and whether it is the
// half-open probe.
func (cb *CircuitBreaker) allowRequest() (probe bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, false
		}
		cb.transitionTo(StateHalfOpen)
		cb.probing = true
		return true, true
	default:
		if cb.probing {
			return false, false
		}
		cb.probing = true
		return true, true
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		metrics.RecordCircuitBreakerTrip(cb.name, "half_open_failure")
		cb.transitionTo(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.transitionTo(StateClosed)
}

func (cb *CircuitBreaker) releaseProbe(probe bool) {
	if !probe {
		return
	}
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

// transitionTo updates state, logs and metrics. Caller must hold lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.probing = false
	if newState == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.name, string(newState))

	ev := cb.logger.Info()
	if newState == StateOpen {
		ev = cb.logger.Warn().Int("failures", cb.failures)
	}
	ev.Str("from", string(old)).Str("to", string(newState)).Msg("circuit breaker state changed")
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker name used in metrics.
func (cb *CircuitBreaker) Name() string { return cb.name }
