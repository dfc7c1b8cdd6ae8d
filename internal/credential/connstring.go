package credential

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/edvin/tenancy/internal/model"
)

// UnsupportedProviderError is returned for providers without a known
// connection string syntax. Callers must never fall back to a guess.
type UnsupportedProviderError struct {
	Provider model.DatabaseProvider
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported database provider %q", e.Provider)
}

// InvalidParameterError is returned when an additional parameter would
// produce a malformed connection string.
type InvalidParameterError struct {
	Key    string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid connection parameter %q: %s", e.Key, e.Reason)
}

type options struct {
	host string
	port int
}

// Option overrides a field of the stored credentials, e.g. to target a read replica.
type Option func(*options)

func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// BuildConnectionString renders creds in the syntax of provider for the
// principal selected by role.
func BuildConnectionString(creds *model.DatabaseCredentials, provider model.DatabaseProvider, role model.CredentialRole, opts ...Option) (string, error) {
	if !provider.Supported() {
		return "", &UnsupportedProviderError{Provider: provider}
	}
	if creds == nil {
		return "", fmt.Errorf("build connection string: nil credentials")
	}
	user, err := creds.User(role)
	if err != nil {
		return "", fmt.Errorf("build connection string: %w", err)
	}

	o := options{host: creds.Host, port: creds.Port}
	for _, opt := range opts {
		opt(&o)
	}
	if o.port == 0 {
		o.port = provider.DefaultPort()
	}

	switch provider {
	case model.ProviderPostgreSQL:
		return postgresDSN(o, creds.Database, user, creds.AdditionalParameters)
	case model.ProviderMySQL:
		return mysqlDSN(o, creds.Database, user, creds.AdditionalParameters)
	case model.ProviderSQLServer:
		return sqlServerDSN(o, creds.Database, user, creds.AdditionalParameters)
	case model.ProviderNone:
	}
	return "", &UnsupportedProviderError{Provider: provider}
}

// Separator returns the field separator of the provider's connection string syntax.
func Separator(provider model.DatabaseProvider) (string, error) {
	switch provider {
	case model.ProviderPostgreSQL:
		return " ", nil
	case model.ProviderMySQL:
		return "&", nil
	case model.ProviderSQLServer:
		return ";", nil
	case model.ProviderNone:
	}
	return "", &UnsupportedProviderError{Provider: provider}
}

func checkParams(provider model.DatabaseProvider, params map[string]string) error {
	sep, err := Separator(provider)
	if err != nil {
		return err
	}
	for k, v := range params {
		switch {
		case strings.TrimSpace(k) == "":
			return &InvalidParameterError{Key: k, Reason: "empty key"}
		case strings.Contains(k, "="):
			return &InvalidParameterError{Key: k, Reason: "key contains '='"}
		case strings.Contains(k, sep), strings.Contains(v, sep):
			return &InvalidParameterError{Key: k, Reason: fmt.Sprintf("contains the field separator %q", sep)}
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// postgresDSN renders the keyword/value form understood by pgx.
func postgresDSN(o options, database string, user model.UserCredentials, params map[string]string) (string, error) {
	if err := checkParams(model.ProviderPostgreSQL, params); err != nil {
		return "", err
	}
	parts := []string{
		"host=" + pgQuote(o.host),
		"port=" + strconv.Itoa(o.port),
		"dbname=" + pgQuote(database),
		"user=" + pgQuote(user.Username),
		"password=" + pgQuote(user.Password),
	}
	for _, k := range sortedKeys(params) {
		parts = append(parts, k+"="+pgQuote(params[k]))
	}
	return strings.Join(parts, " "), nil
}

func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// mysqlDSN renders the go-sql-driver DSN. Multi statements are enabled so
// that migration scripts may contain more than one statement.
func mysqlDSN(o options, database string, user model.UserCredentials, params map[string]string) (string, error) {
	if err := checkParams(model.ProviderMySQL, params); err != nil {
		return "", err
	}
	cfg := mysql.NewConfig()
	cfg.User = user.Username
	cfg.Passwd = user.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.host, strconv.Itoa(o.port))
	cfg.DBName = database
	cfg.MultiStatements = true
	cfg.ParseTime = true
	if len(params) > 0 {
		cfg.Params = make(map[string]string, len(params))
		for k, v := range params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}

// sqlServerDSN renders the ADO form understood by go-mssqldb.
func sqlServerDSN(o options, database string, user model.UserCredentials, params map[string]string) (string, error) {
	if err := checkParams(model.ProviderSQLServer, params); err != nil {
		return "", err
	}
	parts := []string{
		"server=" + adoQuote(o.host),
		"port=" + strconv.Itoa(o.port),
		"database=" + adoQuote(database),
		"user id=" + adoQuote(user.Username),
		"password=" + adoQuote(user.Password),
	}
	for _, k := range sortedKeys(params) {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, ";"), nil
}

func adoQuote(v string) string {
	if !strings.ContainsAny(v, `;"'`) && strings.TrimSpace(v) == v {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
