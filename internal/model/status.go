package model

// MigrationState is the per-service migration status of a tenant database.
type MigrationState string

// Migration status constants.
const (
	MigrationPending              MigrationState = "pending"
	MigrationInProgress           MigrationState = "in_progress"
	MigrationCompleted            MigrationState = "completed"
	MigrationFailed               MigrationState = "failed"
	MigrationPartiallyProvisioned MigrationState = "partially_provisioned"
)

// ParseMigrationState converts a wire value into a MigrationState.
func ParseMigrationState(s string) (MigrationState, bool) {
	switch MigrationState(s) {
	case MigrationPending, MigrationInProgress, MigrationCompleted, MigrationFailed, MigrationPartiallyProvisioned:
		return MigrationState(s), true
	}
	return "", false
}

// Terminal reports whether no further work is expected for the service
// until something retries it.
func (s MigrationState) Terminal() bool {
	switch s {
	case MigrationCompleted, MigrationFailed, MigrationPartiallyProvisioned:
		return true
	}
	return false
}

// Tenant-level provisioning rollup, derived from all migration statuses.
const (
	ProvisioningPending    = "pending"
	ProvisioningInProgress = "in_progress"
	ProvisioningReady      = "ready"
	ProvisioningFailed     = "failed"
	ProvisioningPartial    = "partial"
)
