// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package telemetry sets up OpenTelemetry tracing for ragbox.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects the span exporter. It mirrors the telemetry section of
// the ragbox configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// ExporterType is "grpc" (OTLP on :4317) or "http" (OTLP on :4318).
	ExporterType string
	Endpoint     string
	// SamplingRate is the fraction of new root traces kept, 0 to 1.
	SamplingRate float64
}

// Provider owns the SDK tracer provider. A Provider built from a disabled
// Config exports nothing and its Shutdown is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs the global tracer provider and propagator. Spans from
// the API middleware, the ingest workers, the summarizer and the model
// client all end up in the exporter configured here.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ragbox"
	}

	exporter, err := newExporter(ctx, cfg.ExporterType, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		// honour the caller's decision when a request arrives with a traceparent
		sdktrace.WithSampler(sdktrace.ParentBased(ratioSampler(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

// newExporter builds the OTLP exporter. Collectors are expected on a
// trusted network, so both transports run without TLS.
func newExporter(ctx context.Context, kind, endpoint string) (sdktrace.SpanExporter, error) {
	switch kind {
	case "grpc":
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC exporter: %w", err)
		}
		return exp, nil
	case "http":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s (supported: grpc, http)", kind)
	}
}

func ratioSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans, waiting at most five seconds.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}

// Tracer returns a tracer for the given name.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p != nil && p.tp != nil }

// StartSpan starts a span on the named tracer and returns a finish function
// that records err (if any) on the span before ending it.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
