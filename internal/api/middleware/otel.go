// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation.
// This automatically creates spans for all HTTP requests and propagates trace context.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
			),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// shouldTrace skips probe and scrape endpoints.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

func spanNameFormatter(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
