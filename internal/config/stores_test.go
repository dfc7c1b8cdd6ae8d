package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
)

func TestMigrationOptions(t *testing.T) {
	cfg := &Config{
		MigrationDefaultProvider: "mssql",
		MigrationScriptsDir:      "/srv/catalog/migrations",
		MigrationUseTransactions: false,
		MigrationCommandTimeout:  time.Minute,
		MigrationJournalSchema:   "ops",
		MigrationJournalTable:    "journal",
	}

	opts, err := cfg.MigrationOptions()
	require.NoError(t, err)
	assert.Equal(t, model.ProviderSQLServer, opts.Provider)
	assert.Equal(t, "/srv/catalog/migrations", opts.ScriptsDir)
	assert.False(t, opts.UseTransactions)
	assert.Equal(t, time.Minute, opts.CommandTimeout)
	require.NotNil(t, opts.JournalSchema)
	assert.Equal(t, "ops", *opts.JournalSchema)
	assert.Equal(t, "journal", opts.JournalTable)
}

func TestMigrationOptions_UnknownProvider(t *testing.T) {
	_, err := (&Config{MigrationDefaultProvider: "oracle"}).MigrationOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIGRATION_DEFAULT_PROVIDER")
}

func TestSecretStore(t *testing.T) {
	cfg := &Config{
		SecretStoreKind: "vault",
		SecretRoot:      "database",
		VaultAddress:    "https://vault:8200",
		VaultMount:      "kv",
		VaultAuthMethod: "approle",
		VaultRoleID:     "role",
		VaultSecretID:   "secret",
		SecretCacheTTL:  time.Minute,
	}

	sc := cfg.SecretStore()
	assert.Equal(t, "vault", sc.Kind)
	assert.Equal(t, time.Minute, sc.CacheTTL)
	assert.Equal(t, "kv", sc.Vault.Mount)
	assert.Equal(t, secretstore.AuthAppRole, sc.Vault.Auth.Method)
	assert.NoError(t, sc.Vault.Auth.Validate())
	assert.Equal(t, "database/shared/shared/catalog/write", cfg.SecretPaths().ForShared("catalog", secretstore.AccessWrite))
}

func TestProvisioning(t *testing.T) {
	cfg := &Config{
		Services:         []string{"catalog", "orders"},
		SharedDBHost:     "shared-pg.internal",
		SharedDBReadHost: "shared-pg-ro.internal",
		DedicatedDBHost:  "dedicated-pg.internal",
		DedicatedDBPort:  6432,
		SecretRoot:       "db",
	}

	pc := cfg.Provisioning()
	assert.Equal(t, []string{"catalog", "orders"}, pc.Services)
	assert.Equal(t, "shared-pg.internal", pc.Shared.Host)
	assert.Equal(t, "shared-pg-ro.internal", pc.Shared.ReadHost)
	assert.Equal(t, 0, pc.Shared.Port)
	assert.Equal(t, "dedicated-pg.internal", pc.Dedicated.Host)
	assert.Equal(t, 6432, pc.Dedicated.Port)
	assert.Equal(t, "db", pc.Paths.Root)
}

func TestSharedBootstrap(t *testing.T) {
	cfg := &Config{SharedDBProvider: "postgresql"}
	b, err := cfg.SharedBootstrap()
	require.NoError(t, err)
	assert.Nil(t, b)

	cfg.SharedDBAdminUsername = "platform_owner"
	cfg.SharedDBAdminPassword = "owner-secret"
	cfg.SharedDBProvider = "mssql"
	b, err = cfg.SharedBootstrap()
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, model.ProviderSQLServer, b.Provider)
	assert.Equal(t, "platform_owner", b.Admin.Username)
	assert.Equal(t, "owner-secret", b.Admin.Password)

	cfg.SharedDBProvider = "oracle"
	_, err = cfg.SharedBootstrap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHARED_DB_PROVIDER")
}
