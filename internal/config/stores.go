package config

import (
	"fmt"

	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/migration"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
)

// SecretStore returns the secret store settings.
func (c *Config) SecretStore() secretstore.Config {
	return secretstore.Config{
		Kind:     c.SecretStoreKind,
		CacheTTL: c.SecretCacheTTL,
		Vault: secretstore.VaultConfig{
			Address:       c.VaultAddress,
			Namespace:     c.VaultNamespace,
			Mount:         c.VaultMount,
			ClientTimeout: c.VaultRequestTimeout,
			CACert:        c.VaultCACert,
			Auth: secretstore.AuthConfig{
				Method:   secretstore.AuthMethod(c.VaultAuthMethod),
				Token:    c.VaultToken,
				RoleID:   c.VaultRoleID,
				SecretID: c.VaultSecretID,
				Role:     c.VaultKubernetesRole,
				Username: c.VaultUsername,
				Password: c.VaultPassword,
			},
		},
	}
}

func (c *Config) SecretPaths() secretstore.Paths {
	return secretstore.Paths{Root: c.SecretRoot}
}

// Provisioning returns where tenant databases are placed and their
// credentials stored.
func (c *Config) Provisioning() core.ProvisioningConfig {
	return core.ProvisioningConfig{
		Services:  c.Services,
		Shared:    core.Cluster{Host: c.SharedDBHost, ReadHost: c.SharedDBReadHost, Port: c.SharedDBPort},
		Dedicated: core.Cluster{Host: c.DedicatedDBHost, ReadHost: c.DedicatedDBReadHost, Port: c.DedicatedDBPort},
		Paths:     c.SecretPaths(),
	}
}

// MigrationOptions returns the per-run options of the migration runner.
func (c *Config) MigrationOptions() (migration.Options, error) {
	opts := migration.DefaultOptions()
	if c.MigrationDefaultProvider != "" {
		p, err := model.ParseDatabaseProvider(c.MigrationDefaultProvider)
		if err != nil {
			return opts, fmt.Errorf("MIGRATION_DEFAULT_PROVIDER: %w", err)
		}
		opts.Provider = p
	}
	opts.ScriptsDir = c.MigrationScriptsDir
	opts.UseTransactions = c.MigrationUseTransactions
	opts.CommandTimeout = c.MigrationCommandTimeout
	if c.MigrationJournalSchema != "" {
		schema := c.MigrationJournalSchema
		opts.JournalSchema = &schema
	}
	if c.MigrationJournalTable != "" {
		opts.JournalTable = c.MigrationJournalTable
	}
	return opts, nil
}

// RunnerConfig returns the migration runner's process-wide settings.
func (c *Config) RunnerConfig() migration.RunnerConfig {
	return migration.RunnerConfig{
		LocalMode:   c.LocalDevelopment,
		ScriptsDir:  c.MigrationScriptsDir,
		LockTimeout: c.MigrationLockTimeout,
	}
}

// SharedBootstrap returns the seed for the platform shared database
// credentials, or nil when SHARED_DB_ADMIN_USERNAME is unset.
func (c *Config) SharedBootstrap() (*core.SharedBootstrap, error) {
	if c.SharedDBAdminUsername == "" {
		return nil, nil
	}
	p, err := model.ParseDatabaseProvider(c.SharedDBProvider)
	if err != nil {
		return nil, fmt.Errorf("SHARED_DB_PROVIDER: %w", err)
	}
	return &core.SharedBootstrap{
		Provider: p,
		Admin:    model.UserCredentials{Username: c.SharedDBAdminUsername, Password: c.SharedDBAdminPassword},
	}, nil
}
