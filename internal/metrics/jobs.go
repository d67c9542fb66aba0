// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragbox_ingest_jobs_total",
		Help: "Finished ingest jobs by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|deduplicated

	jobsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragbox_ingest_jobs_rejected_total",
		Help: "Ingest jobs rejected because the queue was full",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ragbox_ingest_queue_depth",
		Help: "Jobs waiting for a worker",
	})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ragbox_ingest_jobs_running",
		Help: "Jobs currently processed by a worker",
	})
)

// IncJob counts a finished job.
func IncJob(outcome string) { jobsTotal.WithLabelValues(outcome).Inc() }

// IncJobRejected counts a job rejected by admission.
func IncJobRejected() { jobsRejected.Inc() }

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// JobStarted and JobFinished track in-flight jobs.
func JobStarted()  { jobsRunning.Inc() }
func JobFinished() { jobsRunning.Dec() }
