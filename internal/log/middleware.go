// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Middleware logs one line per handled HTTP request and stores a request
// scoped logger in the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := WithContext(r.Context(), WithComponent("http"))
			ctx := logger.WithContext(r.Context())

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := logger.Info()
			if status >= http.StatusInternalServerError {
				evt = logger.Error()
			} else if status >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str(FieldEvent, "request.handled").
				Str("method", r.Method).
				Str(FieldPath, r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request handled")
		})
	}
}
