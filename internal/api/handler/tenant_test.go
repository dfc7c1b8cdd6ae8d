package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalmocks "go.temporal.io/sdk/mocks"

	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/secretstore"
)

func newTenantService(db *handlerMockDB) *core.TenantService {
	return core.NewTenantService(db, &temporalmocks.Client{},
		secretstore.NewStore(secretstore.NewMemoryBackend()),
		core.ProvisioningConfig{Paths: secretstore.Paths{Root: "database"}})
}

func newTenantHandler() (*Tenant, *handlerMockDB) {
	db := &handlerMockDB{}
	return NewTenant(newTenantService(db)), db
}

func sqlContains(fragment string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

func noRows(dest ...any) error { return pgx.ErrNoRows }

// --- Create ---

func TestTenantCreate_InvalidJSON(t *testing.T) {
	h, _ := newTenantHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/tenants", "{bad json")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, errorMessage(rec), "invalid JSON")
}

func TestTenantCreate_EmptyBody(t *testing.T) {
	h, _ := newTenantHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/tenants", "")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(rec), "invalid JSON")
}

func TestTenantCreate_MissingRequiredFields(t *testing.T) {
	h, _ := newTenantHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/tenants", map[string]any{})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(rec), "validation error")
}

func TestTenantCreate_InvalidFields(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{
			"identifier":        "acme",
			"name":              "Acme Corp",
			"plan":              "Enterprise",
			"database_strategy": "shared",
			"database_provider": "postgresql",
		}
	}
	tests := []struct {
		name  string
		field string
		value any
	}{
		{"uppercase identifier", "identifier", "Acme"},
		{"identifier with spaces", "identifier", "acme corp"},
		{"identifier starts with digit", "identifier", "1acme"},
		{"strategy none", "database_strategy", "none"},
		{"unknown strategy", "database_strategy", "sharded"},
		{"provider none", "database_provider", "none"},
		{"unknown provider", "database_provider", "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, db := newTenantHandler()
			body := valid()
			body[tt.field] = tt.value
			rec := httptest.NewRecorder()

			h.Create(rec, newRequest(http.MethodPost, "/tenants", body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(rec), "validation error")
			db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTenantCreate_Conflict(t *testing.T) {
	h, db := newTenantHandler()
	db.On("QueryRow", mock.Anything, sqlContains("SELECT EXISTS"), []any{"acme"}).
		Return(scanRow(func(dest ...any) error {
			*(dest[0].(*bool)) = true
			return nil
		}))
	rec := httptest.NewRecorder()

	h.Create(rec, newRequest(http.MethodPost, "/tenants", map[string]any{
		"identifier":        "acme",
		"name":              "Acme Corp",
		"plan":              "Enterprise",
		"database_strategy": "shared",
		"database_provider": "postgresql",
	}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, errorMessage(rec), "already exists")
}

func TestTenantCreate_ExternalWithoutCredentials(t *testing.T) {
	h, db := newTenantHandler()
	db.On("QueryRow", mock.Anything, sqlContains("SELECT EXISTS"), []any{"acme"}).
		Return(scanRow(func(dest ...any) error {
			*(dest[0].(*bool)) = false
			return nil
		}))
	rec := httptest.NewRecorder()

	h.Create(rec, newRequest(http.MethodPost, "/tenants", map[string]any{
		"identifier":        "acme",
		"name":              "Acme Corp",
		"plan":              "Enterprise",
		"database_strategy": "external",
		"database_provider": "sqlserver",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(rec), "external strategy requires custom credentials")
	db.AssertNotCalled(t, "Begin", mock.Anything)
}

func TestTenantCreate_IncompleteCustomCredentials(t *testing.T) {
	h, _ := newTenantHandler()
	rec := httptest.NewRecorder()

	h.Create(rec, newRequest(http.MethodPost, "/tenants", map[string]any{
		"identifier":        "acme",
		"name":              "Acme Corp",
		"plan":              "Enterprise",
		"database_strategy": "external",
		"database_provider": "sqlserver",
		"custom_credentials": map[string]any{
			"admin": map[string]any{"username": "sa"},
			"host":  "sql.acme.example",
		},
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(rec), "validation error")
}

// --- Get ---

func TestTenantGet_NotFound(t *testing.T) {
	h, db := newTenantHandler()
	db.On("QueryRow", mock.Anything, sqlContains("FROM tenants WHERE id = $1"), []any{validID}).Return(scanRow(noRows))
	rec := httptest.NewRecorder()
	r := withURLParams(newRequest(http.MethodGet, "/tenants/"+validID, nil), "id", validID)

	h.Get(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorMessage(rec), "not found")
}

func TestTenantGet_MissingID(t *testing.T) {
	h, _ := newTenantHandler()
	rec := httptest.NewRecorder()
	r := withURLParams(newRequest(http.MethodGet, "/tenants/", nil), "id", "")

	h.Get(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantGetByIdentifier_NotFound(t *testing.T) {
	h, db := newTenantHandler()
	db.On("QueryRow", mock.Anything, sqlContains("FROM tenants WHERE identifier = $1"), []any{"acme"}).Return(scanRow(noRows))
	rec := httptest.NewRecorder()
	r := withURLParams(newRequest(http.MethodGet, "/tenants/by-identifier/acme", nil), "identifier", "acme")

	h.GetByIdentifier(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- List ---

func TestTenantList_Empty(t *testing.T) {
	h, db := newTenantHandler()
	db.On("Query", mock.Anything, sqlContains("FROM tenants"), mock.Anything).Return(&scanRows{}, nil)
	rec := httptest.NewRecorder()

	h.List(rec, newRequest(http.MethodGet, "/tenants?status=active", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{}, body["items"])
	assert.Equal(t, false, body["has_more"])
}

// --- Activate / Deactivate ---

func TestTenantActivate_NotFound(t *testing.T) {
	h, db := newTenantHandler()
	db.On("Exec", mock.Anything, sqlContains("UPDATE tenants"), []any{true, validID}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	rec := httptest.NewRecorder()
	r := withURLParams(newRequest(http.MethodPost, "/tenants/"+validID+"/activate", nil), "id", validID)

	h.Activate(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantDeactivate(t *testing.T) {
	h, db := newTenantHandler()
	db.On("Exec", mock.Anything, sqlContains("UPDATE tenants"), []any{false, validID}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	rec := httptest.NewRecorder()
	r := withURLParams(newRequest(http.MethodPost, "/tenants/"+validID+"/deactivate", nil), "id", validID)

	h.Deactivate(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	db.AssertExpectations(t)
}
