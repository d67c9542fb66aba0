// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/ManuGH/ragbox/internal/auth"
	xglog "github.com/ManuGH/ragbox/internal/log"
)

// BearerAuth rejects requests without the expected token. An empty token
// disables authentication.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.AuthorizeRequest(r, token) {
				logger := xglog.WithComponentFromContext(r.Context(), "auth")
				logger.Warn().
					Str(xglog.FieldEvent, "auth.rejected").
					Str(xglog.FieldPath, r.URL.Path).
					Msg("missing or invalid api token")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="ragbox"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","detail":"missing or invalid api token"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
