// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragbox_llm_request_duration_seconds",
		Help:    "Latency of LLM generate calls by model and outcome",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model", "outcome"})

	llmRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_llm_retries_total",
		Help: "Retried LLM calls by model",
	}, []string{"model"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ragbox_circuit_breaker_state",
		Help: "Circuit breaker state by component (active state=1; others 0)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips (transitions to open state)",
	}, []string{"component", "reason"})
)

// RecordLLMRequest observes one generate call.
func RecordLLMRequest(model, outcome string, d time.Duration) {
	llmRequestDuration.WithLabelValues(model, outcome).Observe(d.Seconds())
}

// IncLLMRetry counts a retry attempt.
func IncLLMRetry(model string) { llmRetries.WithLabelValues(model).Inc() }

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a circuit breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}
