package secretstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edvin/tenancy/internal/model"
)

// Credential payload fields.
const (
	KeyAdminUsername = "admin_username"
	KeyAdminPassword = "admin_password"
	KeyAppUsername   = "app_username"
	KeyAppPassword   = "app_password"
	KeyHost          = "host"
	KeyPort          = "port"
	KeyDatabase      = "database"
	KeyProvider      = "provider"

	paramPrefix = "param_"
)

var requiredKeys = []string{
	KeyAdminUsername, KeyAdminPassword,
	KeyAppUsername, KeyAppPassword,
	KeyHost, KeyPort, KeyDatabase,
}

// EncodeCredentials flattens a bundle into the stored payload.
func EncodeCredentials(c *model.DatabaseCredentials) map[string]string {
	data := map[string]string{
		KeyAdminUsername: c.Admin.Username,
		KeyAdminPassword: c.Admin.Password,
		KeyAppUsername:   c.Application.Username,
		KeyAppPassword:   c.Application.Password,
		KeyHost:          c.Host,
		KeyPort:          strconv.Itoa(c.Port),
		KeyDatabase:      c.Database,
	}
	if c.Provider != nil && *c.Provider != model.ProviderNone {
		data[KeyProvider] = string(*c.Provider)
	}
	for k, v := range c.AdditionalParameters {
		data[paramPrefix+k] = v
	}
	return data
}

// DecodeCredentials rebuilds a bundle, failing on the first missing required field.
func DecodeCredentials(path string, data map[string]string) (*model.DatabaseCredentials, error) {
	for _, k := range requiredKeys {
		if strings.TrimSpace(data[k]) == "" {
			return nil, &MissingKeyError{Path: path, Key: k}
		}
	}

	port, err := strconv.Atoi(data[KeyPort])
	if err != nil {
		return nil, fmt.Errorf("parse port at path %q: %w", path, err)
	}

	c := &model.DatabaseCredentials{
		Admin:       model.UserCredentials{Username: data[KeyAdminUsername], Password: data[KeyAdminPassword]},
		Application: model.UserCredentials{Username: data[KeyAppUsername], Password: data[KeyAppPassword]},
		Host:        data[KeyHost],
		Port:        port,
		Database:    data[KeyDatabase],
	}

	if raw, ok := data[KeyProvider]; ok && raw != "" {
		p, err := model.ParseDatabaseProvider(raw)
		if err != nil {
			return nil, fmt.Errorf("decode credentials at path %q: %w", path, err)
		}
		c.Provider = &p
	}

	for k, v := range data {
		if name, ok := strings.CutPrefix(k, paramPrefix); ok && name != "" {
			if c.AdditionalParameters == nil {
				c.AdditionalParameters = map[string]string{}
			}
			c.AdditionalParameters[name] = v
		}
	}
	return c, nil
}
