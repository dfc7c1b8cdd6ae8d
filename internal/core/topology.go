package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/edvin/tenancy/internal/credential"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
)

// DefaultServices participate in tenant onboarding unless configured otherwise.
var DefaultServices = []string{"catalog", "customer", "orders"}

// Cluster is a database endpoint the platform provisions into.
type Cluster struct {
	Host string
	// ReadHost is the replica endpoint. Empty means Host.
	ReadHost string
	// Port 0 means the provider's default port.
	Port int
}

func (c Cluster) readHost() string {
	if c.ReadHost != "" {
		return c.ReadHost
	}
	return c.Host
}

func (c Cluster) port(p model.DatabaseProvider) int {
	if c.Port > 0 {
		return c.Port
	}
	return p.DefaultPort()
}

type ProvisioningConfig struct {
	Services  []string
	Shared    Cluster
	Dedicated Cluster
	Paths     secretstore.Paths
	// StaleAfter is how long an InProgress claim blocks other deliveries.
	// 0 means model.DefaultMigrationStaleAfter.
	StaleAfter time.Duration
}

func (c ProvisioningConfig) staleAfter() time.Duration {
	if c.StaleAfter > 0 {
		return c.StaleAfter
	}
	return model.DefaultMigrationStaleAfter
}

func (c ProvisioningConfig) services() []string {
	if len(c.Services) == 0 {
		return DefaultServices
	}
	return c.Services
}

type secretWrite struct {
	path  string
	creds *model.DatabaseCredentials
}

// servicePlan is what provisioning will store and record for one service.
type servicePlan struct {
	service string
	meta    model.DatabaseMetadata
	writes  []secretWrite
}

// planService decides the topology of one service's database for a tenant.
func (c ProvisioningConfig) planService(t *model.Tenant, service string, custom *model.DatabaseCredentials) (servicePlan, error) {
	plan := servicePlan{service: service}
	writePath := c.Paths.ForTenant(t.DatabaseStrategy, t.ID, service, secretstore.AccessWrite)
	plan.meta = model.DatabaseMetadata{
		ServiceName:         service,
		WriteCredentialPath: writePath,
		WriteEnvKey:         secretstore.EnvKey(service, t.Identifier, secretstore.AccessWrite),
	}

	switch t.DatabaseStrategy {
	case model.StrategyShared, model.StrategyDedicated:
		cluster, database := c.Shared, service+"_shared"
		if t.DatabaseStrategy == model.StrategyDedicated {
			cluster, database = c.Dedicated, service+"_"+strings.ReplaceAll(t.Identifier, "-", "_")
		}
		admin, app, err := credential.GeneratePair(service)
		if err != nil {
			return servicePlan{}, fmt.Errorf("generate credentials for %s: %w", service, err)
		}
		provider := t.DatabaseProvider
		write := &model.DatabaseCredentials{
			Admin:       admin,
			Application: app,
			Host:        cluster.Host,
			Port:        cluster.port(provider),
			Database:    database,
			Provider:    &provider,
		}
		read := *write
		read.Host = cluster.readHost()

		readPath := c.Paths.ForTenant(t.DatabaseStrategy, t.ID, service, secretstore.AccessRead)
		readKey := secretstore.EnvKey(service, t.Identifier, secretstore.AccessRead)
		plan.meta.ReadCredentialPath = &readPath
		plan.meta.ReadEnvKey = &readKey
		plan.meta.HasSeparateReadDatabase = true
		plan.writes = []secretWrite{{path: writePath, creds: write}, {path: readPath, creds: &read}}

	case model.StrategyExternal:
		if custom == nil {
			return servicePlan{}, model.NewValidationError("custom_credentials", "external strategy requires custom credentials")
		}
		creds := *custom
		if creds.Provider == nil {
			provider := t.DatabaseProvider
			creds.Provider = &provider
		}
		plan.writes = []secretWrite{{path: writePath, creds: &creds}}

	default:
		return servicePlan{}, model.NewValidationError("database_strategy", "cannot provision "+string(t.DatabaseStrategy))
	}
	return plan, nil
}
