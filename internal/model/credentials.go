package model

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// CredentialRole selects which principal of a credential bundle is used.
type CredentialRole string

const (
	// RoleAdmin is used only for migrations.
	RoleAdmin CredentialRole = "admin"
	// RoleApplication is used only for runtime access.
	RoleApplication CredentialRole = "application"
)

type UserCredentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// DatabaseCredentials is the bundle stored at one secret path.
type DatabaseCredentials struct {
	Admin                UserCredentials   `json:"admin" validate:"required"`
	Application          UserCredentials   `json:"application" validate:"required"`
	Host                 string            `json:"host" validate:"required"`
	Port                 int               `json:"port" validate:"required,min=1,max=65535"`
	Database             string            `json:"database" validate:"required"`
	Provider             *DatabaseProvider `json:"provider,omitempty"`
	AdditionalParameters map[string]string `json:"additional_parameters,omitempty"`
}

// User returns the principal for the given role.
func (c *DatabaseCredentials) User(role CredentialRole) (UserCredentials, error) {
	switch role {
	case RoleAdmin:
		return c.Admin, nil
	case RoleApplication:
		return c.Application, nil
	}
	return UserCredentials{}, fmt.Errorf("unknown credential role %q", role)
}

// ProviderOr returns the bundle's provider, or fallback when the bundle omits it.
func (c *DatabaseCredentials) ProviderOr(fallback DatabaseProvider) DatabaseProvider {
	if c.Provider != nil && *c.Provider != "" && *c.Provider != ProviderNone {
		return *c.Provider
	}
	return fallback
}

// Validate checks that every required field is populated and that the
// admin and application principals are distinct.
func (c *DatabaseCredentials) Validate() error {
	var result *multierror.Error
	required := []struct {
		field string
		value string
	}{
		{"admin.username", c.Admin.Username},
		{"admin.password", c.Admin.Password},
		{"application.username", c.Application.Username},
		{"application.password", c.Application.Password},
		{"host", c.Host},
		{"database", c.Database},
	}
	for _, r := range required {
		if r.value == "" {
			result = multierror.Append(result, NewValidationError(r.field, "is required"))
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, NewValidationError("port", fmt.Sprintf("out of range: %d", c.Port)))
	}
	if c.Admin.Username != "" && c.Admin.Username == c.Application.Username {
		result = multierror.Append(result, NewValidationError("application.username", "must differ from the admin principal"))
	}
	return result.ErrorOrNil()
}
