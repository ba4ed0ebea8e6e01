package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// runMigrations applies all pending migrations for the given dialect
// ("sqlite" or "postgres") and returns the resulting schema version.
// The migrate instance is not closed: closing it would close conn.
func runMigrations(conn *sql.DB, dialect string) (uint, error) {
	var (
		driver migratedb.Driver
		err    error
	)
	switch dialect {
	case "sqlite":
		driver, err = sqlite.WithInstance(conn, &sqlite.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(conn, &postgres.Config{})
	default:
		return 0, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create %s migration driver: %w", dialect, err)
	}

	source, err := iofs.New(migrationFS, "migrations/"+dialect)
	if err != nil {
		return 0, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
