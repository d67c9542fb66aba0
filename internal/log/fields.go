// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldJobID      = "job_id"
	FieldDocumentID = "document_id"
	FieldChunkID    = "chunk_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldParser    = "parser"
	FieldStage     = "stage"

	// Chunk fields
	FieldChunkType  = "chunk_type"
	FieldSourcePage = "source_page"

	// LLM fields
	FieldModel = "model"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
