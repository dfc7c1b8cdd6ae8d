package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault is a minimal KV v2 + auth server.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
	status  int
	logins  []string
	token   string
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: map[string]map[string]interface{}{}, token: "s.test"}
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{"forced"}})
		return
	}

	path := r.URL.Path
	if len(path) > len("/v1/auth/") && path[:len("/v1/auth/")] == "/v1/auth/" {
		body, _ := io.ReadAll(r.Body)
		f.logins = append(f.logins, path+" "+string(body))
		json.NewEncoder(w).Encode(map[string]any{"auth": map[string]any{"client_token": f.token}})
		return
	}

	if r.Header.Get("X-Vault-Token") != f.token {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{"permission denied"}})
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, ok := f.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"errors": []string{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": data, "metadata": map[string]any{"version": 1}},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.secrets[path] = body.Data
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"version": 1}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestVaultBackend(t *testing.T, f *fakeVault, auth AuthConfig) *VaultBackend {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	b, err := NewVaultBackend(context.Background(), VaultConfig{
		Address: srv.URL,
		Mount:   "kv",
		Auth:    auth,
	})
	require.NoError(t, err)
	return b
}

func TestVaultBackend_WriteThenRead(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthToken, Token: "s.test"})
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "database/tenants/t1/catalog/write", map[string]string{"host": "pg", "port": "5432"}))
	_, stored := f.secrets["/v1/kv/data/database/tenants/t1/catalog/write"]
	assert.True(t, stored)

	data, err := b.Read(ctx, "database/tenants/t1/catalog/write")
	require.NoError(t, err)
	assert.Equal(t, "pg", data["host"])
	assert.Equal(t, "5432", data["port"])
}

func TestVaultBackend_ReadNotFound(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthToken, Token: "s.test"})

	_, err := b.Read(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestVaultBackend_ServerErrorIsTransient(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthToken, Token: "s.test"})
	f.status = http.StatusServiceUnavailable

	_, err := b.Read(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestVaultBackend_PermissionDeniedIsNotTransient(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthToken, Token: "wrong"})

	_, err := b.Read(context.Background(), "p")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestVaultBackend_AppRoleLogin(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthAppRole, RoleID: "role", SecretID: "secret"})

	require.Len(t, f.logins, 1)
	assert.Contains(t, f.logins[0], "/v1/auth/approle/login")
	assert.Contains(t, f.logins[0], `"role_id":"role"`)

	require.NoError(t, b.Write(context.Background(), "p", map[string]string{"k": "v"}))
}

func TestVaultBackend_UserPassLoginWithCustomMount(t *testing.T) {
	f := newFakeVault()
	newTestVaultBackend(t, f, AuthConfig{Method: AuthUserPass, Username: "svc", Password: "pw", MountPath: "/ldap-users/"})

	require.Len(t, f.logins, 1)
	assert.Contains(t, f.logins[0], "/v1/auth/ldap-users/login/svc")
}

func TestVaultBackend_LogsInAgainWhenTokenExpires(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthAppRole, RoleID: "role", SecretID: "secret"})
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "database/shared/t1/catalog/write", map[string]string{"host": "pg"}))

	f.mu.Lock()
	f.token = "s.rotated"
	f.mu.Unlock()

	data, err := b.Read(ctx, "database/shared/t1/catalog/write")
	require.NoError(t, err)
	assert.Equal(t, "pg", data["host"])
	assert.Len(t, f.logins, 2)
	assert.Equal(t, "s.rotated", b.client.Token())

	require.NoError(t, b.Write(ctx, "database/shared/t1/catalog/read", map[string]string{"host": "pg-ro"}))
	assert.Len(t, f.logins, 2)
}

func TestVaultBackend_StaticTokenIsNotRenewed(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthToken, Token: "s.test"})

	f.mu.Lock()
	f.token = "s.rotated"
	f.mu.Unlock()

	_, err := b.Read(context.Background(), "p")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Empty(t, f.logins)
}

func TestVaultBackend_FailedReloginKeepsPermissionError(t *testing.T) {
	f := newFakeVault()
	b := newTestVaultBackend(t, f, AuthConfig{Method: AuthAppRole, RoleID: "role", SecretID: "secret"})

	f.mu.Lock()
	f.token = "s.rotated"
	f.mu.Unlock()
	b.auth.SecretID = ""
	b.auth.Method = "unknown"

	_, err := b.Read(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, permissionDenied(err))
	assert.Contains(t, err.Error(), "re-login")
	assert.Len(t, f.logins, 1)
}
