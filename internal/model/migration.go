package model

import "time"

// NoMigrationsVersion is recorded as the last migration version when a
// service completes without ever having applied a script.
const NoMigrationsVersion = "none"

// DefaultMigrationStaleAfter is how long an InProgress status holds its claim
// on a tenant's service database before another delivery may take it over.
const DefaultMigrationStaleAfter = 30 * time.Minute

type MigrationStatus struct {
	ServiceName          string         `json:"service_name"`
	Status               MigrationState `json:"status"`
	LastMigrationVersion *string        `json:"last_migration_version,omitempty"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage         *string        `json:"error_message,omitempty"`
	// Version is the optimistic concurrency token of the persisted row.
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FailureKind classifies why a migration run did not succeed.
type FailureKind string

const (
	FailureNone                FailureKind = ""
	FailureSecretRetrieval     FailureKind = "secret_retrieval"
	FailureUnsupportedProvider FailureKind = "unsupported_provider"
	FailureScriptExecution     FailureKind = "script_execution"
	FailureEngineConfiguration FailureKind = "engine_configuration"
	FailureCancelled           FailureKind = "cancelled"
)

// MigrationResult describes one migration run. It is returned, never persisted.
type MigrationResult struct {
	Success        bool             `json:"success"`
	ScriptsApplied int              `json:"scripts_applied"`
	Duration       time.Duration    `json:"duration"`
	AppliedScripts []string         `json:"applied_scripts"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	Provider       DatabaseProvider `json:"provider,omitempty"`
	FailureKind    FailureKind      `json:"failure_kind,omitempty"`
	// CurrentVersion is the newest journaled script after the run, if any.
	CurrentVersion string `json:"current_version,omitempty"`
}

// LastApplied returns the name of the last script applied in this run.
func (r MigrationResult) LastApplied() string {
	if len(r.AppliedScripts) == 0 {
		return ""
	}
	return r.AppliedScripts[len(r.AppliedScripts)-1]
}

// MigrationStatusUpdate is what a service reports about its own migration.
type MigrationStatusUpdate struct {
	Status               MigrationState `json:"status" validate:"required,oneof=in_progress completed failed"`
	LastMigrationVersion *string        `json:"last_migration_version,omitempty"`
	ErrorMessage         *string        `json:"error_message,omitempty"`
}
