// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes the Prometheus collectors of the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	parseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragbox_parse_duration_seconds",
		Help:    "Time spent parsing a document, by parser and outcome",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"parser", "outcome"}) // outcome=success|failure

	chunksExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_chunks_extracted_total",
		Help: "Chunks extracted from documents by chunk type",
	}, []string{"type"})

	summariesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_summaries_total",
		Help: "Chunk summaries by chunk type and outcome",
	}, []string{"type", "outcome"}) // outcome=generated|cached|failure

	promptFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_prompt_fallbacks_total",
		Help: "Prompt template loads that fell back to the generic prompt",
	}, []string{"type"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_summary_cache_lookups_total",
		Help: "Summary cache lookups by backend and result",
	}, []string{"backend", "result"}) // result=hit|miss

	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_config_reloads_total",
		Help: "Configuration reload attempts by outcome",
	}, []string{"outcome"})
)

// RecordParse observes the duration of one parse run.
func RecordParse(parser, outcome string, d time.Duration) {
	parseDuration.WithLabelValues(parser, outcome).Observe(d.Seconds())
}

// AddChunks counts extracted chunks of the given type.
func AddChunks(chunkType string, n int) {
	if n <= 0 {
		return
	}
	chunksExtracted.WithLabelValues(chunkType).Add(float64(n))
}

// IncSummary counts a summary outcome.
func IncSummary(chunkType, outcome string) {
	summariesTotal.WithLabelValues(chunkType, outcome).Inc()
}

// IncPromptFallback counts a fallback to the generic prompt.
func IncPromptFallback(chunkType string) {
	promptFallbacks.WithLabelValues(chunkType).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(backend, result).Inc()
}

// IncConfigReload counts a configuration reload attempt.
func IncConfigReload(outcome string) {
	configReloads.WithLabelValues(outcome).Inc()
}
