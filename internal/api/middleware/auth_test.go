package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authed(keys ...string) (http.Handler, *string) {
	var seen string
	h := Auth(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAPIKeyID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func TestAuth_MissingKey(t *testing.T) {
	handler, _ := authed("svc-key")

	req := httptest.NewRequest("GET", "/api/v1/tenants", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	assert.NoError(t, err)
	assert.Equal(t, "missing API key", body["error"])
}

func TestAuth_InvalidKey(t *testing.T) {
	handler, _ := authed("svc-key")

	req := httptest.NewRequest("GET", "/api/v1/tenants", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid API key")
}

func TestAuth_NoKeysConfiguredRejectsEverything(t *testing.T) {
	handler, _ := authed("", "  ")

	req := httptest.NewRequest("GET", "/api/v1/tenants", nil)
	req.Header.Set("X-API-Key", "")
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ValidKeys(t *testing.T) {
	handler, seen := authed("admin-key", "catalog-key")

	req := httptest.NewRequest("PUT", "/api/v1/tenants/t-1/services/catalog/migration-status", nil)
	req.Header.Set("X-API-Key", "catalog-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, *seen, 8)

	req = httptest.NewRequest("GET", "/api/v1/tenants", nil)
	req.Header.Set("Authorization", "Bearer admin-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer token", "Bearer tnc_abc123", "tnc_abc123"},
		{"empty", "", ""},
		{"no prefix", "tnc_abc123", ""},
		{"basic auth ignored", "Basic dXNlcjpwYXNz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractAPIKey(req))
		})
	}
}
