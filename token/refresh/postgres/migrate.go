package postgres

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewMigrator creates a migration runner for the refresh token schema. The database URL
// is a regular postgres:// URL.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("[NewMigrator] open embedded migrations: %w", err)
	}
	dbURL, err := pgxMigrateURL(databaseURL)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("[NewMigrator] create migrate runner: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. No pending migrations is not an error.
func MigrateUp(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer CloseMigrator(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("[MigrateUp] apply migrations: %w", err)
	}
	return nil
}

// CloseMigrator releases the source and database handles of a runner.
func CloseMigrator(m *migrate.Migrate) error {
	if m == nil {
		return nil
	}
	sourceErr, databaseErr := m.Close()
	return errors.Join(sourceErr, databaseErr)
}

// pgxMigrateURL rewrites the scheme to the one registered by the migrate pgx/v5 driver.
func pgxMigrateURL(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
