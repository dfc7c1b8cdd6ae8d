package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"golang.org/x/sync/singleflight"
)

const loginTimeout = 30 * time.Second

// VaultConfig configures a KV v2 backend. Zero values fall back to the
// Vault client defaults, which also honour the standard VAULT_* variables.
type VaultConfig struct {
	Address       string
	Namespace     string
	Mount         string
	ClientTimeout time.Duration
	MaxRetries    int
	CACert        string
	TLSServerName string
	Auth          AuthConfig
}

// VaultBackend is a Backend on a Vault KV version 2 secrets engine. Tokens
// obtained by a login method are re-acquired when Vault starts rejecting
// them, so a long-running process survives token expiry.
type VaultBackend struct {
	client *api.Client
	mount  string
	auth   AuthConfig
	logins singleflight.Group
}

var _ Backend = (*VaultBackend)(nil)

// NewVaultBackend validates the auth configuration, builds the client and
// logs in. It fails before any network call if auth fields are missing.
func NewVaultBackend(ctx context.Context, cfg VaultConfig) (*VaultBackend, error) {
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("vault auth config: %w", err)
	}

	apiCfg := api.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("vault default config: %w", apiCfg.Error)
	}
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.ClientTimeout > 0 {
		apiCfg.Timeout = cfg.ClientTimeout
	}
	apiCfg.MaxRetries = cfg.MaxRetries
	if cfg.CACert != "" || cfg.TLSServerName != "" {
		if err := apiCfg.ConfigureTLS(&api.TLSConfig{
			CACert:        cfg.CACert,
			TLSServerName: cfg.TLSServerName,
		}); err != nil {
			return nil, fmt.Errorf("configure vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := cfg.Auth.login(ctx, client)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}
	return &VaultBackend{client: client, mount: mount, auth: cfg.Auth}, nil
}

// call runs fn and, when Vault answers 403 to a token this backend obtained
// by logging in, logs in again and retries once.
func (b *VaultBackend) call(ctx context.Context, fn func() (*api.Secret, error)) (*api.Secret, error) {
	used := b.client.Token()
	sec, err := fn()
	if err == nil || b.auth.Method == AuthToken || !permissionDenied(err) {
		return sec, err
	}
	if lerr := b.relogin(ctx, used); lerr != nil {
		return nil, fmt.Errorf("%w (re-login: %v)", err, lerr)
	}
	return fn()
}

// relogin replaces stale with a fresh token. Concurrent callers share one
// login, and a caller whose token was already replaced does not log in.
func (b *VaultBackend) relogin(ctx context.Context, stale string) error {
	_, err, _ := b.logins.Do("login", func() (any, error) {
		if b.client.Token() != stale {
			return nil, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
		defer cancel()
		token, err := b.auth.login(lctx, b.client)
		if err != nil {
			return nil, err
		}
		b.client.SetToken(token)
		return nil, nil
	})
	return err
}

func permissionDenied(err error) bool {
	var re *api.ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusForbidden
}

func (b *VaultBackend) dataPath(path string) string {
	return b.mount + "/data/" + strings.TrimLeft(path, "/")
}

func (b *VaultBackend) Read(ctx context.Context, path string) (map[string]string, error) {
	sec, err := b.call(ctx, func() (*api.Secret, error) {
		return b.client.Logical().ReadWithContext(ctx, b.dataPath(path))
	})
	if err != nil {
		return nil, classify("read", path, err)
	}
	if sec == nil || sec.Data == nil {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}

	// A soft-deleted latest version is returned with "data": null.
	raw, ok := sec.Data["data"].(map[string]interface{})
	if !ok || raw == nil {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}

	data := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			data[k] = val
		case json.Number:
			data[k] = val.String()
		case nil:
		default:
			data[k] = fmt.Sprint(val)
		}
	}
	return data, nil
}

func (b *VaultBackend) Write(ctx context.Context, path string, data map[string]string) error {
	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}
	_, err := b.call(ctx, func() (*api.Secret, error) {
		return b.client.Logical().WriteWithContext(ctx, b.dataPath(path), map[string]interface{}{
			"data": payload,
		})
	})
	if err != nil {
		return classify("write", path, err)
	}
	return nil
}

// classify maps Vault errors onto the package error taxonomy.
func classify(op, path string, err error) error {
	var re *api.ResponseError
	if errors.As(err, &re) {
		switch {
		case re.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
		case re.StatusCode == http.StatusTooManyRequests, re.StatusCode >= 500:
			return &TransientError{Op: op, Path: path, Err: err}
		default:
			return fmt.Errorf("%s %s: %w", op, path, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	return &TransientError{Op: op, Path: path, Err: err}
}
