// Package secretstore reads and writes per-tenant credential bundles in an
// external secret store.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/tenancy/internal/model"
)

// ErrNotFound is returned when nothing is stored at a path.
var ErrNotFound = errors.New("secret not found")

// MissingKeyError is returned when a stored bundle lacks a required field.
// It is permanent: retrying will not make the field appear.
type MissingKeyError struct {
	Path string
	Key  string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q at path %q", e.Key, e.Path)
}

// TransientError marks a failure the caller may retry, such as a network
// error or a 5xx from the store.
type TransientError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Backend is the raw key/value view of the secret store. Paths are relative
// to the backend's mount.
type Backend interface {
	Read(ctx context.Context, path string) (map[string]string, error)
	Write(ctx context.Context, path string, data map[string]string) error
}

// Client is the credential-oriented contract used by provisioning and migration.
type Client interface {
	GetCredentialsByPath(ctx context.Context, path string) (*model.DatabaseCredentials, error)
	StoreCredentials(ctx context.Context, path string, creds *model.DatabaseCredentials) error
	GetSecret(ctx context.Context, path, key string) (*string, error)
	StoreSecret(ctx context.Context, path string, data map[string]string) error
	CredentialsExist(ctx context.Context, path string) (bool, error)
}

// Store implements Client on top of a Backend.
type Store struct {
	backend Backend
}

var _ Client = (*Store)(nil)

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) GetCredentialsByPath(ctx context.Context, path string) (*model.DatabaseCredentials, error) {
	data, err := s.backend.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return DecodeCredentials(path, data)
}

func (s *Store) StoreCredentials(ctx context.Context, path string, creds *model.DatabaseCredentials) error {
	if creds == nil {
		return fmt.Errorf("store credentials at %q: nil credentials", path)
	}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("store credentials at %q: %w", path, err)
	}
	if err := s.backend.Write(ctx, path, EncodeCredentials(creds)); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// GetSecret returns nil when either the path or the key is absent.
func (s *Store) GetSecret(ctx context.Context, path, key string) (*string, error) {
	data, err := s.backend.Read(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	v, ok := data[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) StoreSecret(ctx context.Context, path string, data map[string]string) error {
	if err := s.backend.Write(ctx, path, data); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

func (s *Store) CredentialsExist(ctx context.Context, path string) (bool, error) {
	_, err := s.backend.Read(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check credentials: %w", err)
	}
	return true, nil
}
