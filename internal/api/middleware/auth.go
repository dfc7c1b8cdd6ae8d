package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/edvin/tenancy/internal/api/response"
)

type contextKey string

// APIKeyIDKey carries a short, non-secret fingerprint of the caller's key.
const APIKeyIDKey contextKey = "api_key_id"

// Auth returns a middleware that accepts requests whose X-API-Key header (or
// Bearer token) matches one of keys.
func Auth(keys []string) func(http.Handler) http.Handler {
	hashes := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			hashes = append(hashes, sha256.Sum256([]byte(k)))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = extractAPIKey(r)
			}
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			sum := sha256.Sum256([]byte(key))
			matched := 0
			for _, h := range hashes {
				matched |= subtle.ConstantTimeCompare(sum[:], h[:])
			}
			if matched != 1 {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIDKey, hex.EncodeToString(sum[:4]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey returns the token of an "Authorization: Bearer" header.
func extractAPIKey(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetAPIKeyID returns the fingerprint set by Auth, or "".
func GetAPIKeyID(ctx context.Context) string {
	id, _ := ctx.Value(APIKeyIDKey).(string)
	return id
}
