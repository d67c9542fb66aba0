// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragbox_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ragbox_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	httpRequestSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragbox_http_request_size_bytes",
		Help:    "HTTP request sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "path"})
)

// Metrics creates a middleware that records Prometheus metrics for HTTP requests.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			mw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(mw, r)

			// route pattern keeps label cardinality bounded
			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			if r.ContentLength > 0 {
				httpRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}
			httpRequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(mw.statusCode)).
				Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code.
func (sw *statusWriter) WriteHeader(statusCode int) {
	if !sw.written {
		sw.statusCode = statusCode
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(statusCode)
}

// Write ensures WriteHeader is called with default status if not already written.
func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
