package model

// DatabaseMetadata locates one service's credentials for a tenant. It never
// carries secret values.
type DatabaseMetadata struct {
	ServiceName             string  `json:"service_name"`
	WriteCredentialPath     string  `json:"write_credential_path"`
	WriteEnvKey             string  `json:"write_env_key"`
	ReadCredentialPath      *string `json:"read_credential_path,omitempty"`
	ReadEnvKey              *string `json:"read_env_key,omitempty"`
	HasSeparateReadDatabase bool    `json:"has_separate_read_database"`
}

// Validate enforces that the read path is present iff a separate read
// database exists.
func (m DatabaseMetadata) Validate() error {
	if m.ServiceName == "" {
		return NewValidationError("service_name", "is required")
	}
	if m.WriteCredentialPath == "" {
		return NewValidationError("write_credential_path", "is required")
	}
	hasRead := m.ReadCredentialPath != nil && *m.ReadCredentialPath != ""
	if m.HasSeparateReadDatabase && !hasRead {
		return NewValidationError("read_credential_path", "is required when the service has a separate read database")
	}
	if !m.HasSeparateReadDatabase && m.ReadCredentialPath != nil {
		return NewValidationError("read_credential_path", "must be absent without a separate read database")
	}
	return nil
}

// ReadPathOrWrite returns the path runtime readers should use.
func (m DatabaseMetadata) ReadPathOrWrite() string {
	if m.HasSeparateReadDatabase && m.ReadCredentialPath != nil {
		return *m.ReadCredentialPath
	}
	return m.WriteCredentialPath
}
