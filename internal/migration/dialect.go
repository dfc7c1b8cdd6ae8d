package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/edvin/tenancy/internal/credential"
	"github.com/edvin/tenancy/internal/model"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
)

// dialect holds everything that differs between providers.
type dialect struct {
	provider      model.DatabaseProvider
	driver        string
	placeholder   sq.PlaceholderFormat
	defaultSchema string
	quote         func(string) string
	journalDDL    func(schema, table string) []string
	lock          func(ctx context.Context, conn *sqlx.Conn, key string, timeout time.Duration) error
	unlock        func(ctx context.Context, conn *sqlx.Conn, key string) error
	// batches splits a script into separately executed statements.
	batches func(contents string) []string
}

func dialectFor(provider model.DatabaseProvider) (dialect, error) {
	switch provider {
	case model.ProviderPostgreSQL:
		return postgresDialect(), nil
	case model.ProviderMySQL:
		return mysqlDialect(), nil
	case model.ProviderSQLServer:
		return sqlServerDialect(), nil
	case model.ProviderNone:
	}
	return dialect{}, &credential.UnsupportedProviderError{Provider: provider}
}

func (d dialect) qualify(schema, table string) string {
	if schema == "" {
		return d.quote(table)
	}
	return d.quote(schema) + "." + d.quote(table)
}

func wholeScript(contents string) []string {
	if strings.TrimSpace(contents) == "" {
		return nil
	}
	return []string{contents}
}

func postgresDialect() dialect {
	quote := func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
	return dialect{
		provider:      model.ProviderPostgreSQL,
		driver:        "pgx",
		placeholder:   sq.Dollar,
		defaultSchema: "public",
		quote:         quote,
		journalDDL: func(schema, table string) []string {
			var ddl []string
			if schema != "" && schema != "public" {
				ddl = append(ddl, "CREATE SCHEMA IF NOT EXISTS "+quote(schema))
			}
			name := quote(table)
			if schema != "" {
				name = quote(schema) + "." + name
			}
			return append(ddl, "CREATE TABLE IF NOT EXISTS "+name+
				" (script_name VARCHAR(255) NOT NULL PRIMARY KEY, applied_at TIMESTAMP NOT NULL)")
		},
		lock: func(ctx context.Context, conn *sqlx.Conn, key string, _ time.Duration) error {
			_, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", key)
			return err
		},
		unlock: func(ctx context.Context, conn *sqlx.Conn, key string) error {
			_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key)
			return err
		},
		batches: wholeScript,
	}
}

func mysqlDialect() dialect {
	quote := func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }
	return dialect{
		provider:    model.ProviderMySQL,
		driver:      "mysql",
		placeholder: sq.Question,
		quote:       quote,
		journalDDL: func(schema, table string) []string {
			name := quote(table)
			if schema != "" {
				name = quote(schema) + "." + name
			}
			return []string{"CREATE TABLE IF NOT EXISTS " + name +
				" (script_name VARCHAR(255) NOT NULL PRIMARY KEY, applied_at DATETIME(6) NOT NULL)"}
		},
		lock: func(ctx context.Context, conn *sqlx.Conn, key string, timeout time.Duration) error {
			var got sql.NullInt64
			if err := conn.QueryRowxContext(ctx, "SELECT GET_LOCK(?, ?)", key, int(timeout.Seconds())).Scan(&got); err != nil {
				return err
			}
			if !got.Valid || got.Int64 != 1 {
				return fmt.Errorf("timed out waiting for migration lock %q", key)
			}
			return nil
		},
		unlock: func(ctx context.Context, conn *sqlx.Conn, key string) error {
			_, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", key)
			return err
		},
		batches: wholeScript,
	}
}

func sqlServerDialect() dialect {
	quote := func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" }
	literal := func(s string) string { return "N'" + strings.ReplaceAll(s, "'", "''") + "'" }
	return dialect{
		provider:      model.ProviderSQLServer,
		driver:        "sqlserver",
		placeholder:   sq.AtP,
		defaultSchema: "dbo",
		quote:         quote,
		journalDDL: func(schema, table string) []string {
			if schema == "" {
				schema = "dbo"
			}
			var ddl []string
			if schema != "dbo" {
				ddl = append(ddl, "IF SCHEMA_ID("+literal(schema)+") IS NULL EXEC('CREATE SCHEMA "+
					strings.ReplaceAll(quote(schema), "'", "''")+"')")
			}
			name := quote(schema) + "." + quote(table)
			return append(ddl, "IF OBJECT_ID("+literal(name)+", N'U') IS NULL CREATE TABLE "+name+
				" (script_name NVARCHAR(255) NOT NULL PRIMARY KEY, applied_at DATETIME2 NOT NULL)")
		},
		lock: func(ctx context.Context, conn *sqlx.Conn, key string, timeout time.Duration) error {
			var result int
			err := conn.QueryRowxContext(ctx,
				"DECLARE @result INT; EXEC @result = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Session', @LockTimeout = @p2; SELECT @result",
				key, int(timeout.Milliseconds()),
			).Scan(&result)
			if err != nil {
				return err
			}
			if result < 0 {
				return fmt.Errorf("could not acquire migration lock %q: sp_getapplock returned %d", key, result)
			}
			return nil
		},
		unlock: func(ctx context.Context, conn *sqlx.Conn, key string) error {
			_, err := conn.ExecContext(ctx, "EXEC sp_releaseapplock @Resource = @p1, @LockOwner = 'Session'", key)
			return err
		},
		batches: splitBatches,
	}
}
