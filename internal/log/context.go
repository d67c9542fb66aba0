// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey  ctxKey = "request_id"
	jobIDKey      ctxKey = "job_id"
	documentIDKey ctxKey = "document_id"
)

// ContextWithRequestID stores the provided request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// ContextWithJobID stores the provided job ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return withValue(ctx, jobIDKey, id)
}

// ContextWithDocumentID stores the provided document ID in the context.
func ContextWithDocumentID(ctx context.Context, id string) context.Context {
	return withValue(ctx, documentIDKey, id)
}

func withValue(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// JobIDFromContext extracts the job ID from context if present.
func JobIDFromContext(ctx context.Context) string {
	return stringValue(ctx, jobIDKey)
}

// DocumentIDFromContext extracts the document ID from context if present.
func DocumentIDFromContext(ctx context.Context) string {
	return stringValue(ctx, documentIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if rid := RequestIDFromContext(ctx); rid != "" {
		builder = builder.Str(FieldRequestID, rid)
		added = true
	}
	if jid := JobIDFromContext(ctx); jid != "" {
		builder = builder.Str(FieldJobID, jid)
		added = true
	}
	if did := DocumentIDFromContext(ctx); did != "" {
		builder = builder.Str(FieldDocumentID, did)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns a logger from the context, or the base logger if not present.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := WithContext(ctx, Base())
		return &b
	}
	return l
}
