package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/secretstore"
)

// DefaultParallelism is how many databases a batch migrates at once.
const DefaultParallelism = 4

// TenantDirectory is the tenant service as seen by the migrator CLI.
type TenantDirectory interface {
	ListTenants(ctx context.Context) ([]model.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
	GetDatabaseMetadata(ctx context.Context, tenantID, service string) (*model.DatabaseMetadata, error)
}

// Selection picks the databases a batch migrates. The zero value selects
// the shared database and every tenant with a database of its own.
type Selection struct {
	SharedOnly bool
	TenantID   string
}

// Target is one database to migrate.
type Target struct {
	Name       string
	TenantID   string
	SecretPath string
}

type TargetResult struct {
	Target Target
	Result model.MigrationResult
}

// Summary collects the results of a batch in target order.
type Summary struct {
	Results []TargetResult
}

func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Result.Success {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int { return len(s.Results) - s.Succeeded() }

// OK reports whether every database migrated.
func (s Summary) OK() bool { return s.Failed() == 0 }

// Batch migrates one service's shared and tenant databases outside the
// event flow, for deploy hooks and operators.
type Batch struct {
	service     string
	migrator    Migrator
	tenants     TenantDirectory
	paths       secretstore.Paths
	opts        Options
	parallelism int
	logger      zerolog.Logger
}

func NewBatch(service string, migrator Migrator, tenants TenantDirectory, paths secretstore.Paths, opts Options, parallelism int, logger zerolog.Logger) *Batch {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Batch{
		service:     service,
		migrator:    migrator,
		tenants:     tenants,
		paths:       paths,
		opts:        opts,
		parallelism: parallelism,
		logger:      logger.With().Str("component", "migration-batch").Str("service", service).Logger(),
	}
}

// Plan resolves sel into the databases to migrate.
func (b *Batch) Plan(ctx context.Context, sel Selection) ([]Target, error) {
	shared := Target{Name: "shared", SecretPath: b.paths.ForShared(b.service, secretstore.AccessWrite)}

	switch {
	case sel.SharedOnly:
		return []Target{shared}, nil
	case sel.TenantID != "":
		t, err := b.tenants.GetTenant(ctx, sel.TenantID)
		if err != nil {
			return nil, fmt.Errorf("get tenant %s: %w", sel.TenantID, err)
		}
		target, ok, err := b.tenantTarget(ctx, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("tenant %s has no %s database: %w", sel.TenantID, b.service, model.ErrNotFound)
		}
		return []Target{target}, nil
	}

	tenants, err := b.tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	targets := []Target{shared}
	for i := range tenants {
		t := &tenants[i]
		// Shared tenants live in the shared database.
		if t.DatabaseStrategy == model.StrategyShared {
			continue
		}
		target, ok, err := b.tenantTarget(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			targets = append(targets, target)
		}
	}
	return targets, nil
}

func (b *Batch) tenantTarget(ctx context.Context, t *model.Tenant) (Target, bool, error) {
	meta, err := b.tenants.GetDatabaseMetadata(ctx, t.ID, b.service)
	if errors.Is(err, model.ErrNotFound) {
		b.logger.Debug().Str("tenant_id", t.ID).Msg("tenant has no database for this service")
		return Target{}, false, nil
	}
	if err != nil {
		return Target{}, false, fmt.Errorf("get database metadata for tenant %s: %w", t.ID, err)
	}
	return Target{Name: t.Identifier, TenantID: t.ID, SecretPath: meta.WriteCredentialPath}, true, nil
}

// Run migrates every target and never stops early: one database failing
// does not keep the others at an older schema.
func (b *Batch) Run(ctx context.Context, targets []Target) Summary {
	results := make([]TargetResult, len(targets))

	var g errgroup.Group
	g.SetLimit(b.parallelism)
	for i, target := range targets {
		g.Go(func() error {
			res := b.migrator.Migrate(ctx, target.SecretPath, b.opts)
			results[i] = TargetResult{Target: target, Result: res}

			log := b.logger.With().Str("database", target.Name).Int("scripts_applied", res.ScriptsApplied).Logger()
			if !res.Success {
				log.Error().Str("failure_kind", string(res.FailureKind)).Str("error", res.ErrorMessage).Msg("database migration failed")
				return nil
			}
			log.Info().Dur("duration", res.Duration).Msg("database migrated")
			return nil
		})
	}
	_ = g.Wait()

	return Summary{Results: results}
}
