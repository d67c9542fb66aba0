// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Document attributes
	DocumentIDKey        = "document.id"
	DocumentNameKey      = "document.name"
	DocumentMediaTypeKey = "document.media_type"
	DocumentChunksKey    = "document.chunks"

	// Chunk attributes
	ChunkIDKey   = "chunk.id"
	ChunkTypeKey = "chunk.type"
	ChunkPageKey = "chunk.source_page"

	// LLM attributes
	LLMModelKey   = "llm.model"
	LLMImagesKey  = "llm.images"
	LLMAttemptKey = "llm.attempt"

	// Job attributes
	JobIDKey     = "job.id"
	JobStatusKey = "job.status"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// DocumentAttributes creates document span attributes, skipping empty values.
func DocumentAttributes(id, name, mediaType string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(DocumentIDKey, id))
	}
	if name != "" {
		attrs = append(attrs, attribute.String(DocumentNameKey, name))
	}
	if mediaType != "" {
		attrs = append(attrs, attribute.String(DocumentMediaTypeKey, mediaType))
	}
	return attrs
}

// ChunkAttributes creates chunk span attributes.
func ChunkAttributes(id, chunkType string, page int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ChunkIDKey, id),
		attribute.String(ChunkTypeKey, chunkType),
		attribute.Int(ChunkPageKey, page),
	}
}

// LLMAttributes creates span attributes for a model call.
func LLMAttributes(model string, images int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LLMModelKey, model),
		attribute.Int(LLMImagesKey, images),
	}
}

// JobAttributes creates job span attributes.
func JobAttributes(id, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, id),
		attribute.String(JobStatusKey, status),
	}
}
