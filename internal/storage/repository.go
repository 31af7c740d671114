package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// IsValid reports whether d is a supported backend.
func (d Driver) IsValid() bool {
	return d == DriverSQLite || d == DriverPostgres
}

// sqlDriverName is the name registered with database/sql for d.
func (d Driver) sqlDriverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

type Config struct {
	Driver       Driver
	SQLitePath   string
	DatabaseURL  string
	MaxOpenConns int
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	if c.Driver == DriverPostgres {
		return c.DatabaseURL
	}
	return SQLiteDSN(c.SQLitePath)
}

// SQLiteDSN enables foreign keys and a busy timeout on every connection.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Repository owns the connection pool. Its embedded Queries run outside
// any transaction; use WithTx for anything that must be atomic.
type Repository struct {
	*Queries
	db     *sqlx.DB
	driver Driver
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if !cfg.Driver.IsValid() {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if cfg.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sqlx.Open(cfg.Driver.sqlDriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	switch {
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	case cfg.Driver == DriverSQLite:
		// A single writer keeps SQLite transactions strictly serialized.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(cfg.Driver, cfg.DSN()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Database ready", "driver", cfg.Driver)

	return NewRepository(db, cfg.Driver), nil
}

// NewRepository wraps an existing pool. Migrations are the caller's concern.
func NewRepository(db *sqlx.DB, driver Driver) *Repository {
	return &Repository{
		Queries: newQueries(db, driver),
		db:      db,
		driver:  driver,
	}
}

func (r *Repository) Driver() Driver {
	return r.driver
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise; fn's error is returned unchanged.
func (r *Repository) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(newQueries(tx, r.driver)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Queries runs statements against either the pool or a transaction.
type Queries struct {
	db     sqlx.ExtContext
	driver Driver
}

func newQueries(db sqlx.ExtContext, driver Driver) *Queries {
	return &Queries{db: db, driver: driver}
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.db, dest, q.db.Rebind(query), args...)
}

func (q *Queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.db, dest, q.db.Rebind(query), args...)
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.db.Rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id and returns the new id.
func (q *Queries) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := q.db.QueryRowxContext(ctx, q.db.Rebind(query), args...).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}
