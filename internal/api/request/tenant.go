package request

import "github.com/edvin/tenancy/internal/model"

type CreateTenant struct {
	Identifier        string                     `json:"identifier" validate:"required,slug"`
	Name              string                     `json:"name" validate:"required,max=200"`
	Plan              string                     `json:"plan" validate:"required,max=64"`
	DatabaseStrategy  string                     `json:"database_strategy" validate:"required,oneof=shared dedicated external"`
	DatabaseProvider  string                     `json:"database_provider" validate:"required,oneof=postgresql sqlserver mysql"`
	CustomCredentials *model.DatabaseCredentials `json:"custom_credentials,omitempty" validate:"omitempty"`
}

// UpdateMigrationStatus is the body a backend service reports about its own
// migration run.
type UpdateMigrationStatus struct {
	Status               string  `json:"status" validate:"required,oneof=in_progress completed failed"`
	LastMigrationVersion *string `json:"last_migration_version" validate:"required_if=Status completed,omitempty,max=255"`
	ErrorMessage         *string `json:"error_message" validate:"required_if=Status failed,omitempty"`
}

func (u UpdateMigrationStatus) ToModel() model.MigrationStatusUpdate {
	return model.MigrationStatusUpdate{
		Status:               model.MigrationState(u.Status),
		LastMigrationVersion: u.LastMigrationVersion,
		ErrorMessage:         u.ErrorMessage,
	}
}
