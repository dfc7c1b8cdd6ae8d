package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Execer is the slice of the core pool the audit writer needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AuditLogger is an async audit log writer for mutating API calls.
type AuditLogger struct {
	db     Execer
	logger zerolog.Logger
	ch     chan auditEntry
	done   chan struct{}
}

type auditEntry struct {
	APIKeyID    *string
	Method      string
	Path        string
	TenantID    *string
	ServiceName *string
	StatusCode  int
	RequestBody json.RawMessage
}

func NewAuditLogger(db Execer, logger zerolog.Logger) *AuditLogger {
	al := &AuditLogger{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
		ch:     make(chan auditEntry, 1024),
		done:   make(chan struct{}),
	}
	go al.drain()
	return al
}

func (al *AuditLogger) drain() {
	defer close(al.done)
	for entry := range al.ch {
		_, err := al.db.Exec(context.Background(),
			`INSERT INTO audit_logs (api_key_id, method, path, tenant_id, service_name, status_code, request_body, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			entry.APIKeyID, entry.Method, entry.Path, entry.TenantID, entry.ServiceName, entry.StatusCode, entry.RequestBody,
		)
		if err != nil {
			al.logger.Error().Err(err).Str("path", entry.Path).Msg("failed to write audit log")
		}
	}
}

// Close stops accepting entries and waits for the buffer to drain.
func (al *AuditLogger) Close() {
	close(al.ch)
	<-al.done
}

// Middleware records POST, PUT and DELETE requests.
func (al *AuditLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		var bodyBytes []byte
		if r.Body != nil {
			bodyBytes, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		tenantID, service := extractResource(r.URL.Path)

		var apiKeyID *string
		if id := GetAPIKeyID(r.Context()); id != "" {
			apiKeyID = &id
		}

		var body json.RawMessage
		if len(bodyBytes) > 0 && json.Valid(bodyBytes) {
			body = sanitizeBody(bodyBytes)
		}

		select {
		case al.ch <- auditEntry{
			APIKeyID:    apiKeyID,
			Method:      r.Method,
			Path:        r.URL.Path,
			TenantID:    tenantID,
			ServiceName: service,
			StatusCode:  sw.status,
			RequestBody: body,
		}:
		default:
			al.logger.Warn().Msg("audit log buffer full, dropping entry")
		}
	})
}

// extractResource pulls the tenant and service out of
// /api/v1/tenants/{tenantID}[/services/{serviceName}/...].
func extractResource(path string) (tenantID, service *string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(parts) >= 2 && parts[0] == "tenants" && parts[1] != "" {
		t := parts[1]
		tenantID = &t
	}
	if len(parts) >= 4 && parts[2] == "services" && parts[3] != "" {
		s := parts[3]
		service = &s
	}
	return tenantID, service
}

var sensitiveFields = map[string]bool{
	"password": true, "api_key": true, "secret": true, "token": true,
}

// sanitizeBody redacts sensitive keys at any depth, so nested custom
// credentials never reach the audit table.
func sanitizeBody(body []byte) json.RawMessage {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}
	sanitized, _ := json.Marshal(redact(data))
	return sanitized
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if sensitiveFields[k] {
				t[k] = "[REDACTED]"
				continue
			}
			t[k] = redact(child)
		}
	case []any:
		for i := range t {
			t[i] = redact(t[i])
		}
	}
	return v
}
