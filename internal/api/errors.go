// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/ingest"
	"github.com/ManuGH/ragbox/internal/llm"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/parser"
	"github.com/ManuGH/ragbox/internal/store"
)

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "api.error").
			Str(xglog.FieldPath, r.URL.Path).
			Msg("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{Error: code, Detail: err.Error()})
}

func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, document.ErrInvalidChunkType):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, parser.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, parser.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, ingest.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, ingest.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, ingest.ErrNoSummarizer):
		return http.StatusServiceUnavailable, "summarizer_unavailable"
	case errors.Is(err, llm.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "model_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
