package model

import (
	"fmt"
	"strings"
)

// DatabaseStrategy decides how a tenant's service databases are isolated.
type DatabaseStrategy string

const (
	StrategyNone      DatabaseStrategy = "none"
	StrategyShared    DatabaseStrategy = "shared"
	StrategyDedicated DatabaseStrategy = "dedicated"
	StrategyExternal  DatabaseStrategy = "external"
)

// ParseDatabaseStrategy is case-insensitive.
func ParseDatabaseStrategy(s string) (DatabaseStrategy, error) {
	switch DatabaseStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyNone:
		return StrategyNone, nil
	case StrategyShared:
		return StrategyShared, nil
	case StrategyDedicated:
		return StrategyDedicated, nil
	case StrategyExternal:
		return StrategyExternal, nil
	}
	return "", fmt.Errorf("unknown database strategy %q", s)
}

// HasReadReplica reports whether the platform manages a separate read
// endpoint for databases provisioned with this strategy.
func (s DatabaseStrategy) HasReadReplica() bool {
	switch s {
	case StrategyShared, StrategyDedicated:
		return true
	case StrategyNone, StrategyExternal:
		return false
	}
	return false
}

// GeneratesCredentials reports whether the platform issues credentials
// itself rather than taking them from the caller.
func (s DatabaseStrategy) GeneratesCredentials() bool {
	return s == StrategyShared || s == StrategyDedicated
}

// DatabaseProvider selects the SQL dialect and driver.
type DatabaseProvider string

const (
	ProviderNone       DatabaseProvider = "none"
	ProviderPostgreSQL DatabaseProvider = "postgresql"
	ProviderSQLServer  DatabaseProvider = "sqlserver"
	ProviderMySQL      DatabaseProvider = "mysql"
)

// ParseDatabaseProvider accepts the canonical names plus the common aliases
// used in connection URLs.
func ParseDatabaseProvider(s string) (DatabaseProvider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return ProviderNone, nil
	case "postgresql", "postgres", "pg":
		return ProviderPostgreSQL, nil
	case "sqlserver", "mssql":
		return ProviderSQLServer, nil
	case "mysql":
		return ProviderMySQL, nil
	}
	return "", fmt.Errorf("unknown database provider %q", s)
}

// Supported reports whether connection strings and migrations can be
// produced for the provider.
func (p DatabaseProvider) Supported() bool {
	switch p {
	case ProviderPostgreSQL, ProviderSQLServer, ProviderMySQL:
		return true
	case ProviderNone:
		return false
	}
	return false
}

// DefaultPort returns the provider's well-known port, or 0 if unsupported.
func (p DatabaseProvider) DefaultPort() int {
	switch p {
	case ProviderPostgreSQL:
		return 5432
	case ProviderSQLServer:
		return 1433
	case ProviderMySQL:
		return 3306
	case ProviderNone:
		return 0
	}
	return 0
}
