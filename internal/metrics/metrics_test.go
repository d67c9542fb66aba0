// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func getCounterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return getCounterValue(t, vec.WithLabelValues(labels...))
}

func TestAddChunks(t *testing.T) {
	before := getCounterVecValue(t, chunksExtracted, "table")
	AddChunks("table", 3)
	AddChunks("table", 0)
	AddChunks("table", -2)
	assert.Equal(t, before+3, getCounterVecValue(t, chunksExtracted, "table"))
}

func TestIncSummary(t *testing.T) {
	before := getCounterVecValue(t, summariesTotal, "image", "cached")
	IncSummary("image", "cached")
	assert.Equal(t, before+1, getCounterVecValue(t, summariesTotal, "image", "cached"))
}

func TestRecordCacheLookup(t *testing.T) {
	hits := getCounterVecValue(t, cacheLookups, "memory", "hit")
	misses := getCounterVecValue(t, cacheLookups, "memory", "miss")
	RecordCacheLookup("memory", true)
	RecordCacheLookup("memory", false)
	RecordCacheLookup("memory", false)
	assert.Equal(t, hits+1, getCounterVecValue(t, cacheLookups, "memory", "hit"))
	assert.Equal(t, misses+2, getCounterVecValue(t, cacheLookups, "memory", "miss"))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("ollama", "open")
	assert.Equal(t, 1.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("ollama", "open")))
	assert.Equal(t, 0.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("ollama", "closed")))

	SetCircuitBreakerState("ollama", "closed")
	assert.Equal(t, 0.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("ollama", "open")))
	assert.Equal(t, 1.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("ollama", "closed")))
}

func TestJobGauges(t *testing.T) {
	SetQueueDepth(4)
	assert.Equal(t, 4.0, getGaugeValue(t, queueDepth))

	start := getGaugeValue(t, jobsRunning)
	JobStarted()
	JobStarted()
	JobFinished()
	assert.Equal(t, start+1, getGaugeValue(t, jobsRunning))
	JobFinished()
}

func TestRecordParseDoesNotPanic(t *testing.T) {
	RecordParse("pdf", "success", 150*time.Millisecond)
	RecordLLMRequest("llava", "failure", 2*time.Second)
	IncLLMRetry("llava")
	IncPromptFallback("text")
	IncConfigReload("success")
	IncJob("completed")
	IncJobRejected()
}
