package core

import (
	"context"
	"fmt"

	"github.com/edvin/tenancy/internal/credential"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
)

// SharedBootstrap is what the platform shared database is seeded with.
type SharedBootstrap struct {
	Provider model.DatabaseProvider
	// Admin is the operator-supplied principal that owns the shared
	// databases and runs their migrations.
	Admin model.UserCredentials
}

// EnsureSharedCredentials stores the write and read credentials of every
// service's platform shared database whose path is still empty. Existing
// bundles are left alone. It returns the paths it wrote.
func (s *TenantService) EnsureSharedCredentials(ctx context.Context, b SharedBootstrap) ([]string, error) {
	if !b.Provider.Supported() {
		return nil, model.NewValidationError("provider", "unsupported shared database provider "+string(b.Provider))
	}
	if s.cfg.Shared.Host == "" {
		return nil, model.NewValidationError("host", "shared database host is not configured")
	}
	if b.Admin.Username == "" || b.Admin.Password == "" {
		return nil, model.NewValidationError("admin", "shared database admin credentials are required")
	}

	var written []string
	for _, service := range s.cfg.services() {
		writes, err := s.cfg.planShared(service, b)
		if err != nil {
			return written, err
		}
		for _, w := range writes {
			exists, err := s.secrets.CredentialsExist(ctx, w.path)
			if err != nil {
				return written, fmt.Errorf("check shared credentials %s: %w", w.path, err)
			}
			if exists {
				continue
			}
			if err := s.secrets.StoreCredentials(ctx, w.path, w.creds); err != nil {
				return written, fmt.Errorf("store shared credentials %s: %w", w.path, err)
			}
			written = append(written, w.path)
		}
	}
	return written, nil
}

// planShared builds the bundles the migrator's shared target reads for one
// service. Read and write share principals and differ only by host.
func (c ProvisioningConfig) planShared(service string, b SharedBootstrap) ([]secretWrite, error) {
	_, app, err := credential.GeneratePair(service)
	if err != nil {
		return nil, fmt.Errorf("generate credentials for %s: %w", service, err)
	}
	provider := b.Provider
	write := &model.DatabaseCredentials{
		Admin:       b.Admin,
		Application: app,
		Host:        c.Shared.Host,
		Port:        c.Shared.port(provider),
		Database:    service + "_shared",
		Provider:    &provider,
	}
	read := *write
	read.Host = c.Shared.readHost()
	return []secretWrite{
		{path: c.Paths.ForShared(service, secretstore.AccessWrite), creds: write},
		{path: c.Paths.ForShared(service, secretstore.AccessRead), creds: &read},
	}, nil
}
