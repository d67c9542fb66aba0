// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth validates API bearer tokens.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken retrieves the API token from the request.
// 1. Authorization: Bearer <token>
// 2. Header: X-API-Token
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Token"))
}

// AuthorizeToken returns true if got matches expected using constant-time comparison.
// Empty tokens are always treated as unauthorized.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and validates it against expectedToken.
func AuthorizeRequest(r *http.Request, expectedToken string) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r), expectedToken)
}
