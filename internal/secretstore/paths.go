package secretstore

import (
	"fmt"
	"strings"

	"github.com/edvin/tenancy/internal/model"
)

// Access selects the write (primary) or read (replica) credentials of a service.
type Access string

const (
	AccessWrite Access = "write"
	AccessRead  Access = "read"
)

// SharedScope is the tenant segment used for the platform-wide shared database.
const SharedScope = "shared"

// Paths builds mount-relative secret paths of the form
// {root}/{tenants|shared}/{tenantID|shared}/{service}/{write|read}.
// The layout is persisted in tenant metadata and must stay stable.
type Paths struct {
	Root string
}

// ForTenant returns the path for a tenant's service database.
func (p Paths) ForTenant(strategy model.DatabaseStrategy, tenantID, service string, access Access) string {
	kind := "tenants"
	if strategy == model.StrategyShared {
		kind = "shared"
	}
	return p.join(kind, tenantID, service, string(access))
}

// ForShared returns the path of the platform-wide shared database of a service.
func (p Paths) ForShared(service string, access Access) string {
	return p.join("shared", SharedScope, service, string(access))
}

func (p Paths) join(parts ...string) string {
	root := strings.Trim(p.Root, "/")
	if root == "" {
		return strings.Join(parts, "/")
	}
	return root + "/" + strings.Join(parts, "/")
}

// EnvKey derives the environment/config key under which a service resolves
// a tenant's connection, e.g. CATALOG_DB_ACME_WRITE.
func EnvKey(service, identifier string, access Access) string {
	norm := func(s string) string {
		return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(s))
	}
	return fmt.Sprintf("%s_DB_%s_%s", norm(service), norm(identifier), norm(string(access)))
}
