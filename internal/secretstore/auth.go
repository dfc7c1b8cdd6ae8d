package secretstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/vault/api"
)

// AuthMethod selects how the client authenticates to Vault.
type AuthMethod string

const (
	AuthToken      AuthMethod = "token"
	AuthAppRole    AuthMethod = "approle"
	AuthKubernetes AuthMethod = "kubernetes"
	AuthUserPass   AuthMethod = "userpass"
)

// DefaultKubernetesJWTPath is where the service account token is mounted in a pod.
const DefaultKubernetesJWTPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

type AuthConfig struct {
	Method AuthMethod

	// Token
	Token string

	// AppRole
	RoleID   string
	SecretID string

	// Kubernetes
	Role    string
	JWTPath string

	// UserPass
	Username string
	Password string

	// MountPath overrides the auth mount, which defaults to the method name.
	MountPath string
}

// Validate reports every missing field for the selected method.
func (c AuthConfig) Validate() error {
	var errs *multierror.Error
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s auth requires %s", c.Method, field))
		}
	}

	switch c.Method {
	case AuthToken:
		require("token", c.Token)
	case AuthAppRole:
		require("role_id", c.RoleID)
		require("secret_id", c.SecretID)
	case AuthKubernetes:
		require("role", c.Role)
		if _, err := os.Stat(c.jwtPath()); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("kubernetes auth requires a readable service account token: %w", err))
		}
	case AuthUserPass:
		require("username", c.Username)
		require("password", c.Password)
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown vault auth method %q", c.Method))
	}
	return errs.ErrorOrNil()
}

func (c AuthConfig) jwtPath() string {
	if c.JWTPath != "" {
		return c.JWTPath
	}
	return DefaultKubernetesJWTPath
}

func (c AuthConfig) mount() string {
	if c.MountPath != "" {
		return strings.Trim(c.MountPath, "/")
	}
	return string(c.Method)
}

// login exchanges the configured credentials for a client token.
func (c AuthConfig) login(ctx context.Context, client *api.Client) (string, error) {
	if c.Method == AuthToken {
		return c.Token, nil
	}

	path := "auth/" + c.mount() + "/login"
	var payload map[string]interface{}
	switch c.Method {
	case AuthAppRole:
		payload = map[string]interface{}{"role_id": c.RoleID, "secret_id": c.SecretID}
	case AuthKubernetes:
		jwt, err := os.ReadFile(c.jwtPath())
		if err != nil {
			return "", fmt.Errorf("read service account token: %w", err)
		}
		payload = map[string]interface{}{"role": c.Role, "jwt": strings.TrimSpace(string(jwt))}
	case AuthUserPass:
		path += "/" + c.Username
		payload = map[string]interface{}{"password": c.Password}
	default:
		return "", fmt.Errorf("unknown vault auth method %q", c.Method)
	}

	// Log in on a token-less clone so an expired token, or one picked up
	// from VAULT_TOKEN, is never sent with the credentials.
	lc, err := client.Clone()
	if err != nil {
		return "", fmt.Errorf("vault %s login: %w", c.Method, err)
	}
	lc.SetHeaders(client.Headers())
	lc.ClearToken()

	secret, err := lc.Logical().WriteWithContext(ctx, path, payload)
	if err != nil {
		return "", fmt.Errorf("vault %s login: %w", c.Method, err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return "", fmt.Errorf("vault %s login: no client token in response", c.Method)
	}
	return secret.Auth.ClientToken, nil
}
