package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

var identifierRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// Tenant is the aggregate root for a customer's data isolation boundary. It
// exclusively owns its database metadata and migration statuses.
type Tenant struct {
	ID                string             `json:"id"`
	Identifier        string             `json:"identifier"`
	Name              string             `json:"name"`
	Plan              string             `json:"plan"`
	DatabaseStrategy  DatabaseStrategy   `json:"database_strategy"`
	DatabaseProvider  DatabaseProvider   `json:"database_provider"`
	IsActive          bool               `json:"is_active"`
	Databases         []DatabaseMetadata `json:"databases"`
	MigrationStatuses []MigrationStatus  `json:"migration_statuses"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	events []DomainEvent
}

// NewTenant validates the required fields and raises TenantCreated.
func NewTenant(id, identifier, name, plan string, strategy DatabaseStrategy, provider DatabaseProvider, now time.Time) (*Tenant, error) {
	var errs *multierror.Error
	identifier = strings.TrimSpace(identifier)
	name = strings.TrimSpace(name)
	plan = strings.TrimSpace(plan)

	if id == "" {
		errs = multierror.Append(errs, NewValidationError("id", "is required"))
	}
	switch {
	case identifier == "":
		errs = multierror.Append(errs, NewValidationError("identifier", "is required"))
	case !identifierRegex.MatchString(identifier):
		errs = multierror.Append(errs, NewValidationError("identifier", "must be a lowercase slug"))
	}
	if name == "" {
		errs = multierror.Append(errs, NewValidationError("name", "is required"))
	}
	if plan == "" {
		errs = multierror.Append(errs, NewValidationError("plan", "is required"))
	}
	switch strategy {
	case StrategyShared, StrategyDedicated, StrategyExternal:
	default:
		errs = multierror.Append(errs, NewValidationError("database_strategy", "must be shared, dedicated or external"))
	}
	if !provider.Supported() {
		errs = multierror.Append(errs, NewValidationError("database_provider", "must be postgresql, sqlserver or mysql"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	t := &Tenant{
		ID:                id,
		Identifier:        identifier,
		Name:              name,
		Plan:              plan,
		DatabaseStrategy:  strategy,
		DatabaseProvider:  provider,
		IsActive:          true,
		Databases:         []DatabaseMetadata{},
		MigrationStatuses: []MigrationStatus{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	t.events = append(t.events, TenantCreated{
		TenantID:         id,
		Identifier:       identifier,
		DatabaseStrategy: strategy,
		DatabaseProvider: provider,
		OccurredAt:       now,
	})
	return t, nil
}

// PullEvents returns and clears the pending domain events.
func (t *Tenant) PullEvents() []DomainEvent {
	events := t.events
	t.events = nil
	return events
}

// AddDatabaseMetadata records one service's credential locations.
func (t *Tenant) AddDatabaseMetadata(meta DatabaseMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	if t.DatabaseFor(meta.ServiceName) != nil {
		return &ConflictError{Resource: "database metadata for service", Key: meta.ServiceName}
	}
	t.Databases = append(t.Databases, meta)
	return nil
}

// DatabaseFor returns the metadata for service, or nil.
func (t *Tenant) DatabaseFor(service string) *DatabaseMetadata {
	for i := range t.Databases {
		if t.Databases[i].ServiceName == service {
			return &t.Databases[i]
		}
	}
	return nil
}

// InitializeMigrationStatus adds a Pending status for service.
func (t *Tenant) InitializeMigrationStatus(service string, now time.Time) error {
	if service == "" {
		return NewValidationError("service_name", "is required")
	}
	if t.MigrationStatusFor(service) != nil {
		return &ConflictError{Resource: "migration status for service", Key: service}
	}
	t.MigrationStatuses = append(t.MigrationStatuses, MigrationStatus{
		ServiceName: service,
		Status:      MigrationPending,
		UpdatedAt:   now,
	})
	t.UpdatedAt = now
	return nil
}

// MigrationStatusFor returns the status for service, or nil.
func (t *Tenant) MigrationStatusFor(service string) *MigrationStatus {
	for i := range t.MigrationStatuses {
		if t.MigrationStatuses[i].ServiceName == service {
			return &t.MigrationStatuses[i]
		}
	}
	return nil
}

// UpdateMigrationStatus applies a service-reported transition. Only
// InProgress, Completed and Failed may be reported; PartiallyProvisioned is
// set by MarkPartiallyProvisioned.
func (t *Tenant) UpdateMigrationStatus(service string, state MigrationState, version, errMsg *string, now time.Time) (*MigrationStatus, error) {
	st := t.MigrationStatusFor(service)
	if st == nil {
		return nil, &MigrationStatusNotFoundError{ServiceName: service}
	}

	switch state {
	case MigrationInProgress:
		if st.Status == MigrationInProgress {
			return st, nil
		}
		st.Status = MigrationInProgress
		st.StartedAt = timePtr(now)
		st.CompletedAt = nil
		st.ErrorMessage = nil
	case MigrationCompleted:
		if version == nil || *version == "" {
			return nil, NewValidationError("last_migration_version", "is required when status is completed")
		}
		st.Status = MigrationCompleted
		st.LastMigrationVersion = stringPtr(*version)
		if st.StartedAt == nil {
			st.StartedAt = timePtr(now)
		}
		st.CompletedAt = timePtr(now)
		st.ErrorMessage = nil
	case MigrationFailed:
		if errMsg == nil || strings.TrimSpace(*errMsg) == "" {
			return nil, NewValidationError("error_message", "is required when status is failed")
		}
		st.Status = MigrationFailed
		st.ErrorMessage = stringPtr(*errMsg)
		if version != nil && *version != "" {
			st.LastMigrationVersion = stringPtr(*version)
		}
		st.CompletedAt = timePtr(now)
	default:
		return nil, NewValidationError("status", "cannot be set to "+string(state))
	}

	st.UpdatedAt = now
	t.UpdatedAt = now
	return st, nil
}

// MarkPartiallyProvisioned is the cross-service aggregation step. When every
// service has reached a terminal state and at least one completed while
// another did not, the non-completed services become PartiallyProvisioned.
// It returns the services that changed.
func (t *Tenant) MarkPartiallyProvisioned(now time.Time) []string {
	completed, unfinished := 0, 0
	for _, st := range t.MigrationStatuses {
		if !st.Status.Terminal() {
			return nil
		}
		if st.Status == MigrationCompleted {
			completed++
		} else {
			unfinished++
		}
	}
	if completed == 0 || unfinished == 0 {
		return nil
	}

	var changed []string
	for i := range t.MigrationStatuses {
		st := &t.MigrationStatuses[i]
		if st.Status == MigrationFailed {
			st.Status = MigrationPartiallyProvisioned
			st.UpdatedAt = now
			changed = append(changed, st.ServiceName)
		}
	}
	if len(changed) > 0 {
		t.UpdatedAt = now
	}
	return changed
}

// ProvisioningState rolls every service status up into one tenant-level value.
func (t *Tenant) ProvisioningState() string {
	if len(t.MigrationStatuses) == 0 {
		return ProvisioningPending
	}
	var pending, inProgress, completed, failed int
	for _, st := range t.MigrationStatuses {
		switch st.Status {
		case MigrationPending:
			pending++
		case MigrationInProgress:
			inProgress++
		case MigrationCompleted:
			completed++
		case MigrationFailed, MigrationPartiallyProvisioned:
			failed++
		}
	}
	total := len(t.MigrationStatuses)
	switch {
	case completed == total:
		return ProvisioningReady
	case pending == total:
		return ProvisioningPending
	case inProgress > 0 || pending > 0:
		return ProvisioningInProgress
	case completed == 0:
		return ProvisioningFailed
	default:
		return ProvisioningPartial
	}
}

// IsServiceReady reports whether service has completed its migrations.
func (t *Tenant) IsServiceReady(service string) bool {
	st := t.MigrationStatusFor(service)
	return st != nil && st.Status == MigrationCompleted
}

func (t *Tenant) Activate(now time.Time) {
	if !t.IsActive {
		t.IsActive = true
		t.UpdatedAt = now
	}
}

func (t *Tenant) Deactivate(now time.Time) {
	if t.IsActive {
		t.IsActive = false
		t.UpdatedAt = now
	}
}

func stringPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
