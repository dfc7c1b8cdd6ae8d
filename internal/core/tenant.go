package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/tenancy/internal/api/request"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
	"github.com/edvin/tenancy/internal/secretstore"
)

const (
	tenantColumns   = `id, identifier, name, plan, database_strategy, database_provider, is_active, created_at, updated_at`
	databaseColumns = `tenant_id, service_name, write_credential_path, write_env_key, read_credential_path, read_env_key, has_separate_read_database`
	statusColumns   = `tenant_id, service_name, status, last_migration_version, started_at, completed_at, error_message, version, updated_at`

	pgUniqueViolation = "23505"
	statusUpdateTries = 3
)

type TenantService struct {
	db      DB
	tc      temporalclient.Client
	secrets secretstore.Client
	cfg     ProvisioningConfig
	now     func() time.Time
}

func NewTenantService(db DB, tc temporalclient.Client, secrets secretstore.Client, cfg ProvisioningConfig) *TenantService {
	return &TenantService{db: db, tc: tc, secrets: secrets, cfg: cfg, now: time.Now}
}

type CreateTenantParams struct {
	Identifier        string
	Name              string
	Plan              string
	Strategy          model.DatabaseStrategy
	Provider          model.DatabaseProvider
	CustomCredentials *model.DatabaseCredentials
}

// ProvisioningError is returned when a tenant was persisted but provisioning
// did not finish. The tenant stays discoverable under TenantID.
type ProvisioningError struct {
	TenantID string
	Stage    string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision tenant %s: %s: %v", e.TenantID, e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// CreateTenant provisions credentials for every participating service,
// persists the tenant and starts each service's migration.
func (s *TenantService) CreateTenant(ctx context.Context, p CreateTenantParams) (*model.Tenant, error) {
	identifier := strings.TrimSpace(p.Identifier)
	exists, err := s.identifierExists(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &model.ConflictError{Resource: "tenant", Key: identifier}
	}

	now := s.now().UTC()
	t, err := model.NewTenant(platform.NewTenantID(), identifier, p.Name, p.Plan, p.Strategy, p.Provider, now)
	if err != nil {
		return nil, err
	}
	if t.DatabaseStrategy == model.StrategyExternal {
		if p.CustomCredentials == nil {
			return nil, model.NewValidationError("custom_credentials", "external strategy requires custom credentials")
		}
		if err := p.CustomCredentials.Validate(); err != nil {
			return nil, err
		}
	}

	services := s.cfg.services()
	plans := make([]servicePlan, 0, len(services))
	for _, svc := range services {
		plan, err := s.cfg.planService(t, svc, p.CustomCredentials)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
		if err := t.InitializeMigrationStatus(svc, now); err != nil {
			return nil, err
		}
	}

	// Secrets go first: a tenant row must never point at paths that were
	// never written. Writes are idempotent by path, so nothing is rolled back.
	var storeErr error
	for _, plan := range plans {
		if storeErr == nil {
			if storeErr = s.storeSecrets(ctx, plan); storeErr == nil {
				if err := t.AddDatabaseMetadata(plan.meta); err != nil {
					return nil, err
				}
				continue
			}
			storeErr = fmt.Errorf("store credentials for %s: %w", plan.service, storeErr)
		}
		msg := storeErr.Error()
		if _, err := t.UpdateMigrationStatus(plan.service, model.MigrationFailed, nil, &msg, now); err != nil {
			return nil, err
		}
	}
	if storeErr != nil {
		t.Deactivate(now)
	}

	if err := s.insert(ctx, t); err != nil {
		return nil, err
	}
	if storeErr != nil {
		return nil, &ProvisioningError{TenantID: t.ID, Stage: "credentials", Err: storeErr}
	}

	if err := publishEvents(ctx, s.tc, services, t.PullEvents()); err != nil {
		return nil, &ProvisioningError{TenantID: t.ID, Stage: "publish", Err: err}
	}
	return t, nil
}

func (s *TenantService) storeSecrets(ctx context.Context, plan servicePlan) error {
	for _, w := range plan.writes {
		if err := s.secrets.StoreCredentials(ctx, w.path, w.creds); err != nil {
			return err
		}
	}
	return nil
}

func (s *TenantService) identifierExists(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE identifier = $1)`, identifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tenant identifier %s: %w", identifier, err)
	}
	return exists, nil
}

func (s *TenantService) insert(ctx context.Context, t *model.Tenant) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tenant insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Identifier, t.Name, t.Plan, t.DatabaseStrategy, t.DatabaseProvider, t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return &model.ConflictError{Resource: "tenant", Key: t.Identifier}
		}
		return fmt.Errorf("insert tenant: %w", err)
	}

	for _, m := range t.Databases {
		_, err := tx.Exec(ctx,
			`INSERT INTO tenant_databases (`+databaseColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, m.ServiceName, m.WriteCredentialPath, m.WriteEnvKey, m.ReadCredentialPath, m.ReadEnvKey, m.HasSeparateReadDatabase,
		)
		if err != nil {
			return fmt.Errorf("insert database metadata for %s: %w", m.ServiceName, err)
		}
	}

	for _, st := range t.MigrationStatuses {
		_, err := tx.Exec(ctx,
			`INSERT INTO tenant_migration_statuses (`+statusColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)`,
			t.ID, st.ServiceName, st.Status, st.LastMigrationVersion, st.StartedAt, st.CompletedAt, st.ErrorMessage, st.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert migration status for %s: %w", st.ServiceName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant insert: %w", err)
	}
	for i := range t.MigrationStatuses {
		t.MigrationStatuses[i].Version = 1
	}
	return nil
}

func scanTenant(row pgx.Row, t *model.Tenant) error {
	return row.Scan(&t.ID, &t.Identifier, &t.Name, &t.Plan, &t.DatabaseStrategy, &t.DatabaseProvider,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
}

func (s *TenantService) getBy(ctx context.Context, column, value string) (*model.Tenant, error) {
	var t model.Tenant
	err := scanTenant(s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE `+column+` = $1`, value), &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", value, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", value, err)
	}
	tenants := []model.Tenant{t}
	if err := s.attachChildren(ctx, tenants); err != nil {
		return nil, err
	}
	return &tenants[0], nil
}

func (s *TenantService) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	return s.getBy(ctx, "id", id)
}

func (s *TenantService) GetByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error) {
	return s.getBy(ctx, "identifier", identifier)
}

// List pages through tenants ordered by id. Status filters on is_active
// ("active" or "inactive").
func (s *TenantService) List(ctx context.Context, params request.ListParams) ([]model.Tenant, bool, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE true`
	args := []any{}
	argIdx := 1

	if params.Search != "" {
		query += fmt.Sprintf(` AND (identifier ILIKE $%d OR name ILIKE $%d)`, argIdx, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}
	switch params.Status {
	case "active":
		query += ` AND is_active`
	case "inactive":
		query += ` AND NOT is_active`
	}
	if params.Cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, params.Cursor)
		argIdx++
	}
	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, params.Limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := scanTenant(rows, &t); err != nil {
			return nil, false, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate tenants: %w", err)
	}

	hasMore := len(tenants) > params.Limit
	if hasMore {
		tenants = tenants[:params.Limit]
	}
	if err := s.attachChildren(ctx, tenants); err != nil {
		return nil, false, err
	}
	return tenants, hasMore, nil
}

// attachChildren loads the owned collections of every tenant in two queries.
func (s *TenantService) attachChildren(ctx context.Context, tenants []model.Tenant) error {
	if len(tenants) == 0 {
		return nil
	}
	index := make(map[string]int, len(tenants))
	ids := make([]string, len(tenants))
	for i := range tenants {
		index[tenants[i].ID] = i
		ids[i] = tenants[i].ID
		tenants[i].Databases = []model.DatabaseMetadata{}
		tenants[i].MigrationStatuses = []model.MigrationStatus{}
	}

	dbs, err := s.queryDatabases(ctx, `WHERE tenant_id = ANY($1) ORDER BY service_name`, ids)
	if err != nil {
		return err
	}
	for _, d := range dbs {
		t := &tenants[index[d.tenantID]]
		t.Databases = append(t.Databases, d.meta)
	}

	statuses, err := s.queryStatuses(ctx, `WHERE tenant_id = ANY($1) ORDER BY service_name`, ids)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		t := &tenants[index[st.tenantID]]
		t.MigrationStatuses = append(t.MigrationStatuses, st.status)
	}
	return nil
}

type tenantDatabase struct {
	tenantID string
	meta     model.DatabaseMetadata
}

func (s *TenantService) queryDatabases(ctx context.Context, where string, args ...any) ([]tenantDatabase, error) {
	rows, err := s.db.Query(ctx, `SELECT `+databaseColumns+` FROM tenant_databases `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query tenant databases: %w", err)
	}
	defer rows.Close()

	var out []tenantDatabase
	for rows.Next() {
		var d tenantDatabase
		if err := rows.Scan(&d.tenantID, &d.meta.ServiceName, &d.meta.WriteCredentialPath, &d.meta.WriteEnvKey,
			&d.meta.ReadCredentialPath, &d.meta.ReadEnvKey, &d.meta.HasSeparateReadDatabase); err != nil {
			return nil, fmt.Errorf("scan tenant database: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant databases: %w", err)
	}
	return out, nil
}

type tenantStatus struct {
	tenantID string
	status   model.MigrationStatus
}

func scanStatus(row pgx.Row, st *tenantStatus) error {
	return row.Scan(&st.tenantID, &st.status.ServiceName, &st.status.Status, &st.status.LastMigrationVersion,
		&st.status.StartedAt, &st.status.CompletedAt, &st.status.ErrorMessage, &st.status.Version, &st.status.UpdatedAt)
}

func (s *TenantService) queryStatuses(ctx context.Context, where string, args ...any) ([]tenantStatus, error) {
	rows, err := s.db.Query(ctx, `SELECT `+statusColumns+` FROM tenant_migration_statuses `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query migration statuses: %w", err)
	}
	defer rows.Close()

	var out []tenantStatus
	for rows.Next() {
		var st tenantStatus
		if err := scanStatus(rows, &st); err != nil {
			return nil, fmt.Errorf("scan migration status: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration statuses: %w", err)
	}
	return out, nil
}

func (s *TenantService) setActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set tenant %s active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *TenantService) Activate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *TenantService) Deactivate(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

func (s *TenantService) GetDatabaseMetadata(ctx context.Context, tenantID, service string) (*model.DatabaseMetadata, error) {
	dbs, err := s.queryDatabases(ctx, `WHERE tenant_id = $1 AND service_name = $2`, tenantID, service)
	if err != nil {
		return nil, err
	}
	if len(dbs) == 0 {
		return nil, fmt.Errorf("database metadata for %s/%s: %w", tenantID, service, model.ErrNotFound)
	}
	return &dbs[0].meta, nil
}

func (s *TenantService) GetMigrationStatus(ctx context.Context, tenantID, service string) (*model.MigrationStatus, error) {
	var st tenantStatus
	err := scanStatus(s.db.QueryRow(ctx,
		`SELECT `+statusColumns+` FROM tenant_migration_statuses WHERE tenant_id = $1 AND service_name = $2`,
		tenantID, service), &st)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.MigrationStatusNotFoundError{ServiceName: service}
	}
	if err != nil {
		return nil, fmt.Errorf("get migration status %s/%s: %w", tenantID, service, err)
	}
	return &st.status, nil
}

// UpdateMigrationStatus applies a service-reported transition through the
// tenant aggregate and persists it with an optimistic version check. A lost
// race is retried against the fresh row a few times before giving up with
// ErrConcurrentUpdate.
//
// Reporting InProgress claims the run. While another claim is younger than
// the stale threshold the state stays InProgress and the caller gets
// ErrMigrationInProgress; an older claim is taken over with a fresh StartedAt.
func (s *TenantService) UpdateMigrationStatus(ctx context.Context, tenantID, service string, update model.MigrationStatusUpdate) (*model.MigrationStatus, error) {
	for range statusUpdateTries {
		current, err := s.GetMigrationStatus(ctx, tenantID, service)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()

		var next *model.MigrationStatus
		if current.Status == model.MigrationInProgress && update.Status == model.MigrationInProgress {
			if current.StartedAt != nil && now.Sub(*current.StartedAt) < s.cfg.staleAfter() {
				return nil, fmt.Errorf("claim migration %s/%s: %w", tenantID, service, model.ErrMigrationInProgress)
			}
			takeover := *current
			takeover.StartedAt = &now
			takeover.UpdatedAt = now
			next = &takeover
		} else {
			t := &model.Tenant{ID: tenantID, MigrationStatuses: []model.MigrationStatus{*current}}
			next, err = t.UpdateMigrationStatus(service, update.Status, update.LastMigrationVersion, update.ErrorMessage, now)
			if err != nil {
				return nil, err
			}
		}

		saved, err := s.saveStatus(ctx, tenantID, next)
		if errors.Is(err, model.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return saved, nil
	}
	return nil, fmt.Errorf("update migration status %s/%s: %w", tenantID, service, model.ErrConcurrentUpdate)
}

func (s *TenantService) saveStatus(ctx context.Context, tenantID string, st *model.MigrationStatus) (*model.MigrationStatus, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenant_migration_statuses
		 SET status = $1, last_migration_version = $2, started_at = $3, completed_at = $4, error_message = $5,
		     version = version + 1, updated_at = $6
		 WHERE tenant_id = $7 AND service_name = $8 AND version = $9`,
		st.Status, st.LastMigrationVersion, st.StartedAt, st.CompletedAt, st.ErrorMessage, st.UpdatedAt,
		tenantID, st.ServiceName, st.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update migration status %s/%s: %w", tenantID, st.ServiceName, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, model.ErrConcurrentUpdate
	}
	saved := *st
	saved.Version++
	return &saved, nil
}

// Readiness answers whether a tenant's service database is usable.
type Readiness struct {
	TenantID             string               `json:"tenant_id"`
	ServiceName          string               `json:"service_name"`
	Ready                bool                 `json:"ready"`
	Status               model.MigrationState `json:"status"`
	LastMigrationVersion *string              `json:"last_migration_version,omitempty"`
	TenantActive         bool                 `json:"tenant_active"`
	ProvisioningState    string               `json:"provisioning_state"`
}

func (s *TenantService) CheckServiceReadiness(ctx context.Context, tenantID, service string) (*Readiness, error) {
	t, err := s.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	st := t.MigrationStatusFor(service)
	if st == nil {
		return nil, &model.MigrationStatusNotFoundError{ServiceName: service}
	}
	return &Readiness{
		TenantID:             t.ID,
		ServiceName:          service,
		Ready:                t.IsServiceReady(service),
		Status:               st.Status,
		LastMigrationVersion: st.LastMigrationVersion,
		TenantActive:         t.IsActive,
		ProvisioningState:    t.ProvisioningState(),
	}, nil
}

// ReconcileProvisioning marks failed services of tenants whose other
// services completed as PartiallyProvisioned. It returns the number of
// statuses changed.
func (s *TenantService) ReconcileProvisioning(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tenant_id FROM tenant_migration_statuses
		 GROUP BY tenant_id
		 HAVING bool_and(status IN ('completed', 'failed', 'partially_provisioned'))
		    AND bool_or(status = 'completed')
		    AND bool_or(status = 'failed')
		 ORDER BY tenant_id`)
	if err != nil {
		return 0, fmt.Errorf("find partially provisioned tenants: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate tenant ids: %w", err)
	}

	changed := 0
	for _, id := range ids {
		t, err := s.GetByID(ctx, id)
		if err != nil {
			return changed, err
		}
		for _, svc := range t.MarkPartiallyProvisioned(s.now().UTC()) {
			if _, err := s.saveStatus(ctx, t.ID, t.MigrationStatusFor(svc)); err != nil {
				if errors.Is(err, model.ErrConcurrentUpdate) {
					// A service reported in between; the next run sees it.
					continue
				}
				return changed, err
			}
			changed++
		}
	}
	return changed, nil
}
