package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"

	"github.com/edvin/tenancy/internal/model"
)

const (
	DefaultLockTimeout = 2 * time.Minute
	releaseTimeout     = 10 * time.Second
)

// Engine applies scripts to one database and tracks them in a journal table.
// An Engine holds an exclusive lock on its journal until Close.
type Engine interface {
	// Applied returns journaled script names in ascending order.
	Applied(ctx context.Context) ([]string, error)
	// Apply runs scripts in order and returns the names that were kept. When
	// ctx is cancelled between scripts, the scripts applied so far are kept
	// and ctx.Err() is returned alongside them.
	Apply(ctx context.Context, scripts []Script) ([]string, error)
	Close() error
}

type EngineConfig struct {
	// JournalSchema empty means the provider default.
	JournalSchema   string
	JournalTable    string
	UseTransactions bool
	CommandTimeout  time.Duration
	LockTimeout     time.Duration
}

// EngineOpener connects an Engine to the database named by dsn.
type EngineOpener func(ctx context.Context, provider model.DatabaseProvider, dsn string, cfg EngineConfig) (Engine, error)

// ScriptError wraps the failure of a single script.
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// SQLEngine is the database/sql Engine for every supported provider.
type SQLEngine struct {
	db      *sqlx.DB
	conn    *sqlx.Conn
	dialect dialect
	cfg     EngineConfig
	schema  string
	lockKey string
	ownsDB  bool
	now     func() time.Time
}

var _ Engine = (*SQLEngine)(nil)

// OpenSQLEngine is the default EngineOpener.
func OpenSQLEngine(ctx context.Context, provider model.DatabaseProvider, dsn string, cfg EngineConfig) (Engine, error) {
	d, err := dialectFor(provider)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", provider, err)
	}
	e, err := newSQLEngine(ctx, db, d, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	e.ownsDB = true
	return e, nil
}

func newSQLEngine(ctx context.Context, db *sqlx.DB, d dialect, cfg EngineConfig) (*SQLEngine, error) {
	if cfg.JournalTable == "" {
		cfg.JournalTable = DefaultJournalTable
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	schema := cfg.JournalSchema
	if schema == "" {
		schema = d.defaultSchema
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	e := &SQLEngine{
		db:      db,
		conn:    conn,
		dialect: d,
		cfg:     cfg,
		schema:  schema,
		lockKey: "tenancy_migrations:" + cfg.JournalTable,
		now:     func() time.Time { return time.Now().UTC() },
	}

	lockCtx, cancel := context.WithTimeout(ctx, cfg.LockTimeout)
	defer cancel()
	if err := d.lock(lockCtx, conn, e.lockKey, cfg.LockTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}

	if err := e.ensureJournal(ctx); err != nil {
		_ = e.release()
		return nil, err
	}
	return e, nil
}

func (e *SQLEngine) journal() string {
	return e.dialect.qualify(e.schema, e.cfg.JournalTable)
}

func (e *SQLEngine) ensureJournal(ctx context.Context) error {
	for _, stmt := range e.dialect.journalDDL(e.schema, e.cfg.JournalTable) {
		if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create journal %s: %w", e.journal(), err)
		}
	}
	return nil
}

func (e *SQLEngine) Applied(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("script_name").
		From(e.journal()).
		PlaceholderFormat(e.dialect.placeholder).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build journal query: %w", err)
	}
	var names []string
	if err := e.conn.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", e.journal(), err)
	}
	sort.Strings(names)
	return names, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e *SQLEngine) Apply(ctx context.Context, scripts []Script) ([]string, error) {
	if !e.cfg.UseTransactions {
		return e.applyEach(ctx, scripts)
	}

	// Scripts are atomic: cancellation is observed between them, never inside.
	tx, err := e.conn.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("begin migration transaction: %w", err)
	}
	applied := []string{}
	for _, s := range scripts {
		if err := ctx.Err(); err != nil {
			if cerr := tx.Commit(); cerr != nil {
				return nil, multierror.Append(err, fmt.Errorf("commit applied scripts: %w", cerr))
			}
			return applied, err
		}
		if err := e.run(ctx, tx, s); err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				return nil, multierror.Append(err, fmt.Errorf("rollback: %w", rerr))
			}
			return nil, err
		}
		applied = append(applied, s.Name)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit migrations: %w", err)
	}
	return applied, nil
}

func (e *SQLEngine) applyEach(ctx context.Context, scripts []Script) ([]string, error) {
	applied := []string{}
	for _, s := range scripts {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if err := e.run(ctx, e.conn, s); err != nil {
			return applied, err
		}
		applied = append(applied, s.Name)
	}
	return applied, nil
}

func (e *SQLEngine) run(ctx context.Context, x execer, s Script) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommandTimeout)
	defer cancel()

	for _, batch := range e.dialect.batches(s.Contents) {
		if _, err := x.ExecContext(cctx, batch); err != nil {
			return &ScriptError{Script: s.Name, Err: err}
		}
	}

	query, args, err := sq.Insert(e.journal()).
		Columns("script_name", "applied_at").
		Values(s.Name, e.now()).
		PlaceholderFormat(e.dialect.placeholder).
		ToSql()
	if err != nil {
		return fmt.Errorf("build journal insert: %w", err)
	}
	if _, err := x.ExecContext(cctx, query, args...); err != nil {
		return &ScriptError{Script: s.Name, Err: fmt.Errorf("journal: %w", err)}
	}
	return nil
}

func (e *SQLEngine) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	var errs *multierror.Error
	if err := e.dialect.unlock(ctx, e.conn, e.lockKey); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("release migration lock: %w", err))
	}
	if err := e.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = multierror.Append(errs, fmt.Errorf("close connection: %w", err))
	}
	return errs.ErrorOrNil()
}

func (e *SQLEngine) Close() error {
	err := e.release()
	if e.ownsDB {
		if cerr := e.db.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("close database: %w", cerr))
		}
	}
	return err
}
