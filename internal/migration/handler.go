package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/model"
)

const (
	// DefaultStaleAfter is how long an in-progress status blocks re-delivered
	// events before it is assumed abandoned.
	DefaultStaleAfter = model.DefaultMigrationStaleAfter

	reportTimeout = 30 * time.Second
)

// StatusReporter is the tenant service's status-reporting API as seen by a
// backend service.
type StatusReporter interface {
	GetMigrationStatus(ctx context.Context, tenantID, service string) (*model.MigrationStatus, error)
	UpdateMigrationStatus(ctx context.Context, tenantID, service string, update model.MigrationStatusUpdate) error
	GetDatabaseMetadata(ctx context.Context, tenantID, service string) (*model.DatabaseMetadata, error)
}

type Migrator interface {
	Migrate(ctx context.Context, secretPath string, opts Options) model.MigrationResult
}

// Handler migrates one backend service's database when a tenant is created.
type Handler struct {
	service    string
	reporter   StatusReporter
	migrator   Migrator
	opts       Options
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewHandler(service string, reporter StatusReporter, migrator Migrator, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		service:    service,
		reporter:   reporter,
		migrator:   migrator,
		opts:       opts,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logger.With().Str("component", "migration-handler").Str("service", service).Logger(),
	}
}

func (h *Handler) Service() string { return h.service }

// Handle runs the service's migrations for a newly created tenant. It returns
// an error only when the status API cannot be reached, so the event is
// redelivered; migration failures are reported as Failed and swallowed.
func (h *Handler) Handle(ctx context.Context, ev model.TenantCreated) error {
	log := h.logger.With().Str("tenant_id", ev.TenantID).Str("identifier", ev.Identifier).Logger()

	current, err := h.reporter.GetMigrationStatus(ctx, ev.TenantID, h.service)
	if errors.Is(err, model.ErrNotFound) {
		log.Warn().Msg("tenant has no migration status for this service, ignoring event")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get migration status: %w", err)
	}
	if h.running(current) {
		log.Info().Time("started_at", *current.StartedAt).Msg("migration already in progress, skipping duplicate delivery")
		return nil
	}

	err = h.reporter.UpdateMigrationStatus(ctx, ev.TenantID, h.service, model.MigrationStatusUpdate{
		Status: model.MigrationInProgress,
	})
	if errors.Is(err, model.ErrMigrationInProgress) {
		log.Info().Msg("another delivery claimed the migration, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark migration in progress: %w", err)
	}

	meta, err := h.reporter.GetDatabaseMetadata(ctx, ev.TenantID, h.service)
	if err != nil {
		msg := fmt.Sprintf("resolve database metadata for %s: %v", h.service, err)
		log.Error().Err(err).Msg("failed to resolve database metadata")
		if rerr := h.fail(ctx, ev.TenantID, msg, nil); rerr != nil {
			return rerr
		}
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get database metadata: %w", err)
	}

	opts := h.opts
	if opts.Provider == "" || opts.Provider == model.ProviderNone {
		opts.Provider = ev.DatabaseProvider
	}
	res := h.migrator.Migrate(ctx, meta.WriteCredentialPath, opts)

	if !res.Success {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "migration failed"
		}
		log.Error().
			Str("failure_kind", string(res.FailureKind)).
			Int("scripts_applied", res.ScriptsApplied).
			Str("error", msg).
			Msg("migration failed")
		var version *string
		if res.ScriptsApplied > 0 && res.CurrentVersion != "" {
			version = &res.CurrentVersion
		}
		return h.fail(ctx, ev.TenantID, msg, version)
	}

	version := completedVersion(res, current)
	if err := h.report(ctx, ev.TenantID, model.MigrationStatusUpdate{
		Status:               model.MigrationCompleted,
		LastMigrationVersion: &version,
	}); err != nil {
		return fmt.Errorf("mark migration completed: %w", err)
	}
	log.Info().
		Int("scripts_applied", res.ScriptsApplied).
		Str("version", version).
		Dur("duration", res.Duration).
		Msg("migration completed")
	return nil
}

func (h *Handler) running(st *model.MigrationStatus) bool {
	if st.Status != model.MigrationInProgress || st.StartedAt == nil {
		return false
	}
	return h.now().Sub(*st.StartedAt) < h.staleAfter
}

func (h *Handler) fail(ctx context.Context, tenantID, msg string, version *string) error {
	if err := h.report(ctx, tenantID, model.MigrationStatusUpdate{
		Status:               model.MigrationFailed,
		LastMigrationVersion: version,
		ErrorMessage:         &msg,
	}); err != nil {
		return fmt.Errorf("mark migration failed: %w", err)
	}
	return nil
}

// report sends a terminal update even when ctx has been cancelled, so a
// cancelled run does not leave the status stuck in progress.
func (h *Handler) report(ctx context.Context, tenantID string, update model.MigrationStatusUpdate) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	return h.reporter.UpdateMigrationStatus(rctx, tenantID, h.service, update)
}

// completedVersion picks the version to report: the last script applied in
// this run, else the newest journaled script, else the previously reported
// version, else NoMigrationsVersion.
func completedVersion(res model.MigrationResult, prior *model.MigrationStatus) string {
	if v := res.LastApplied(); v != "" {
		return v
	}
	if res.CurrentVersion != "" {
		return res.CurrentVersion
	}
	if prior != nil && prior.LastMigrationVersion != nil && *prior.LastMigrationVersion != "" {
		return *prior.LastMigrationVersion
	}
	return model.NoMigrationsVersion
}
