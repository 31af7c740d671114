package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations for one driver.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a dedicated connection for migrations so closing the
// migrator never touches the application's pool.
func NewMigrator(driver Driver, dsn string) (*Migrator, error) {
	if !driver.IsValid() {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	migrateDB, err := sql.Open(driver.sqlDriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(driver))
	if err != nil {
		migrateDB.Close()
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	var m *migrate.Migrate
	switch driver {
	case DriverPostgres:
		dbDriver, derr := migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
		if derr != nil {
			migrateDB.Close()
			return nil, fmt.Errorf("create pgx driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx5", dbDriver)
	default:
		dbDriver, derr := sqlite.WithInstance(migrateDB, &sqlite.Config{})
		if derr != nil {
			migrateDB.Close()
			return nil, fmt.Errorf("create sqlite driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", dbDriver)
	}
	if err != nil {
		migrateDB.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Migrator{m: m}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	return m.Steps(-1)
}

// Steps applies n migrations forward, or -n backwards when negative.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate steps %d: %w", n, err)
	}
	return nil
}

// Version reports the applied version and whether the last run left the
// schema dirty. A fresh database reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrate version: %w", err)
	}
	return v, dirty, nil
}

// Force marks version v as applied without running it, clearing a dirty flag.
func (m *Migrator) Force(v int) error {
	if err := m.m.Force(v); err != nil {
		return fmt.Errorf("migrate force %d: %w", v, err)
	}
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// RunMigrations brings the schema for driver up to date.
func RunMigrations(driver Driver, dsn string) error {
	m, err := NewMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
