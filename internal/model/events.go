package model

import "time"

// DomainEvent is raised by an aggregate and published after it is persisted.
type DomainEvent interface {
	EventName() string
}

// TenantCreated carries what a service needs to look up its own database info.
type TenantCreated struct {
	TenantID         string           `json:"tenant_id"`
	Identifier       string           `json:"identifier"`
	DatabaseStrategy DatabaseStrategy `json:"database_strategy"`
	DatabaseProvider DatabaseProvider `json:"database_provider"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

func (TenantCreated) EventName() string { return "tenant.created" }

// TenantMigrationWorkflowName is the Temporal workflow each participating
// service runs for a TenantCreated event.
const TenantMigrationWorkflowName = "TenantMigrationWorkflow"

// MigrationTaskQueue is the task queue a service's migration worker polls.
func MigrationTaskQueue(service string) string {
	return "migrations-" + service
}

// MigrationWorkflowID is unique per tenant and service, so Temporal never
// runs two migrations of the same database at once.
func MigrationWorkflowID(tenantID, service string) string {
	return "migrate-" + tenantID + "-" + service
}
