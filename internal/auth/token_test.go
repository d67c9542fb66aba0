// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, "s3cret"},
		{"bearer lowercase scheme", map[string]string{"Authorization": "bearer s3cret "}, "s3cret"},
		{"basic ignored", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, ""},
		{"api token header", map[string]string{"X-API-Token": "legacy"}, "legacy"},
		{"bearer wins", map[string]string{"Authorization": "Bearer a", "X-API-Token": "b"}, "a"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractToken(r))
		})
	}
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("abc", "abc"))
	assert.False(t, AuthorizeToken("abd", "abc"))
	assert.False(t, AuthorizeToken("", "abc"))
	assert.False(t, AuthorizeToken("abc", ""))
	assert.False(t, AuthorizeToken("abc", "   "))
	assert.False(t, AuthorizeRequest(nil, "abc"))
}
