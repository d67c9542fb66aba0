// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test-open", 3, 10*time.Second, WithClock(clock))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errBoom)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test-reset", 2, time.Second)

	_ = cb.Execute(fail)
	assert.NoError(t, cb.Execute(succeed))
	_ = cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"probe succeeds", succeed, StateClosed},
		{"probe fails", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &mockClock{now: time.Now()}
			cb := NewCircuitBreaker("test-probe", 1, 5*time.Second, WithClock(clock))

			_ = cb.Execute(fail)
			assert.Equal(t, StateOpen, cb.State())

			clock.now = clock.now.Add(4 * time.Second)
			assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

			clock.now = clock.now.Add(2 * time.Second)
			_ = cb.Execute(tt.probe)
			assert.Equal(t, tt.want, cb.State())
		})
	}
}

func TestCircuitBreaker_SingleProbeInFlight(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test-single", 1, time.Second, WithClock(clock))
	_ = cb.Execute(fail)
	clock.now = clock.now.Add(2 * time.Second)

	err := cb.Execute(func() error {
		assert.Equal(t, StateHalfOpen, cb.State())
		// a concurrent caller is rejected while the probe runs
		assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ClassifierIgnoresErrors(t *testing.T) {
	errClient := errors.New("bad request")
	cb := NewCircuitBreaker("test-classifier", 1, time.Second,
		WithFailureClassifier(func(err error) bool { return !errors.Is(err, errClient) }))

	assert.ErrorIs(t, cb.Execute(func() error { return errClient }), errClient)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateOpen, cb.State(), "custom classifier replaces the default")
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("test-cancel", 1, time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("test-defaults", 0, 0)
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.Equal(t, "test-defaults", cb.Name())
}
