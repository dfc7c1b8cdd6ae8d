package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Process roles accepted by Validate.
const (
	RoleCoreAPI         = "core-api"
	RoleWorker          = "worker"
	RoleMigrationWorker = "migration-worker"
	RoleMigrator        = "migrator"
)

type Config struct {
	ServiceName      string
	LogLevel         string
	LocalDevelopment bool

	CoreDatabaseURL string
	CoreDBMaxConns  int
	HTTPListenAddr  string
	MetricsAddr     string
	// APIKeys are accepted by the core API; each backend service gets its own.
	APIKeys []string

	TemporalAddress       string
	TemporalNamespace     string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	SecretStoreKind     string
	SecretRoot          string
	SecretCacheTTL      time.Duration
	VaultAddress        string
	VaultNamespace      string
	VaultMount          string
	VaultAuthMethod     string
	VaultToken          string
	VaultRoleID         string
	VaultSecretID       string
	VaultKubernetesRole string
	VaultUsername       string
	VaultPassword       string
	VaultCACert         string
	VaultRequestTimeout time.Duration

	// Services participate in tenant onboarding.
	Services         []string
	TopologyFile     string
	SharedDBHost     string
	SharedDBReadHost string
	SharedDBPort     int
	// SharedDBAdmin* seed the platform shared database credentials on
	// core-api startup. Empty username disables seeding.
	SharedDBAdminUsername string
	SharedDBAdminPassword string
	SharedDBProvider      string
	DedicatedDBHost       string
	DedicatedDBReadHost   string
	DedicatedDBPort       int
	ReconcileSchedule     string

	// Migration worker / migrator.
	MigrationService         string
	MigrationScriptsDir      string
	MigrationDefaultProvider string
	MigrationJournalSchema   string
	MigrationJournalTable    string
	MigrationUseTransactions bool
	MigrationCommandTimeout  time.Duration
	MigrationLockTimeout     time.Duration
	TenantAPIURL             string
	TenantAPIKey             string
}

// Load reads the environment. With LOCAL_DEVELOPMENT=true a .env file in the
// working directory is loaded first; variables already set win.
func Load() (*Config, error) {
	local := getEnvBool("LOCAL_DEVELOPMENT", false)
	if local {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var errs *multierror.Error
	cfg := &Config{
		ServiceName:      getEnv("SERVICE_NAME", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LocalDevelopment: local,

		CoreDatabaseURL: getEnv("CORE_DATABASE_URL", ""),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		APIKeys:         getEnvList("TENANCY_API_KEYS", nil),

		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:     getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		SecretStoreKind:     getEnv("SECRET_STORE", "vault"),
		SecretRoot:          getEnv("SECRET_ROOT", "database"),
		VaultAddress:        getEnv("VAULT_ADDR", ""),
		VaultNamespace:      getEnv("VAULT_NAMESPACE", ""),
		VaultMount:          getEnv("VAULT_MOUNT", "secret"),
		VaultAuthMethod:     getEnv("VAULT_AUTH_METHOD", "token"),
		VaultToken:          getEnv("VAULT_TOKEN", ""),
		VaultRoleID:         getEnv("VAULT_ROLE_ID", ""),
		VaultSecretID:       getEnv("VAULT_SECRET_ID", ""),
		VaultKubernetesRole: getEnv("VAULT_KUBERNETES_ROLE", ""),
		VaultUsername:       getEnv("VAULT_USERNAME", ""),
		VaultPassword:       getEnv("VAULT_PASSWORD", ""),
		VaultCACert:         getEnv("VAULT_CACERT", ""),

		Services:              getEnvList("TENANCY_SERVICES", []string{"catalog", "customer", "orders"}),
		TopologyFile:          getEnv("TENANCY_TOPOLOGY_FILE", ""),
		SharedDBHost:          getEnv("SHARED_DB_HOST", ""),
		SharedDBReadHost:      getEnv("SHARED_DB_READ_HOST", ""),
		SharedDBAdminUsername: getEnv("SHARED_DB_ADMIN_USERNAME", ""),
		SharedDBAdminPassword: getEnv("SHARED_DB_ADMIN_PASSWORD", ""),
		SharedDBProvider:      getEnv("SHARED_DB_PROVIDER", "postgresql"),
		DedicatedDBHost:       getEnv("DEDICATED_DB_HOST", ""),
		DedicatedDBReadHost:   getEnv("DEDICATED_DB_READ_HOST", ""),
		ReconcileSchedule:     getEnv("RECONCILE_SCHEDULE", "*/5 * * * *"),

		MigrationService:         getEnv("MIGRATION_SERVICE", ""),
		MigrationScriptsDir:      getEnv("MIGRATION_SCRIPTS_DIR", "migrations"),
		MigrationDefaultProvider: getEnv("MIGRATION_DEFAULT_PROVIDER", ""),
		MigrationJournalSchema:   getEnv("MIGRATION_JOURNAL_SCHEMA", ""),
		MigrationJournalTable:    getEnv("MIGRATION_JOURNAL_TABLE", "schemaversions"),
		MigrationUseTransactions: getEnvBool("MIGRATION_USE_TRANSACTIONS", true),
		TenantAPIURL:             getEnv("TENANT_API_URL", "http://localhost:8090"),
		TenantAPIKey:             getEnv("TENANT_API_KEY", ""),
	}

	var err error
	if cfg.SecretCacheTTL, err = getEnvDuration("SECRET_CACHE_TTL", 5*time.Minute); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.VaultRequestTimeout, err = getEnvDuration("VAULT_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.MigrationCommandTimeout, err = getEnvDuration("MIGRATION_COMMAND_TIMEOUT", 300*time.Second); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.MigrationLockTimeout, err = getEnvDuration("MIGRATION_LOCK_TIMEOUT", 2*time.Minute); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.CoreDBMaxConns, err = getEnvInt("CORE_DB_MAX_CONNS", 0); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.SharedDBPort, err = getEnvInt("SHARED_DB_PORT", 0); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.DedicatedDBPort, err = getEnvInt("DEDICATED_DB_PORT", 0); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	if cfg.TopologyFile != "" {
		topo, err := LoadTopology(cfg.TopologyFile)
		if err != nil {
			return nil, err
		}
		topo.apply(cfg)
	}
	return cfg, nil
}

// Validate reports every setting the given role needs but lacks.
func (c *Config) Validate(role string) error {
	var errs *multierror.Error
	require := func(name, value string) {
		if value == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s is required for %s", name, role))
		}
	}

	switch role {
	case RoleCoreAPI:
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		if len(c.APIKeys) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("TENANCY_API_KEYS is required for %s", role))
		}
		if !c.LocalDevelopment {
			require("SHARED_DB_HOST", c.SharedDBHost)
			require("DEDICATED_DB_HOST", c.DedicatedDBHost)
		}
		if c.SharedDBAdminUsername != "" {
			require("SHARED_DB_ADMIN_PASSWORD", c.SharedDBAdminPassword)
		}
		c.validateSecretStore(require)
	case RoleWorker:
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("RECONCILE_SCHEDULE", c.ReconcileSchedule)
	case RoleMigrationWorker:
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("MIGRATION_SERVICE", c.MigrationService)
		require("TENANT_API_URL", c.TenantAPIURL)
		c.validateSecretStore(require)
	case RoleMigrator:
		require("MIGRATION_SERVICE", c.MigrationService)
		require("TENANT_API_URL", c.TenantAPIURL)
		c.validateSecretStore(require)
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown role %q", role))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		errs = multierror.Append(errs, errors.New("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set"))
	}
	return errs.ErrorOrNil()
}

func (c *Config) validateSecretStore(require func(name, value string)) {
	if c.SecretStoreKind == "memory" {
		return
	}
	require("VAULT_ADDR", c.VaultAddress)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
