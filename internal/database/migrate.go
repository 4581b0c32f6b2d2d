package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// RunSQLiteMigrations applies all pending up-migrations to the SQLite file at path.
func RunSQLiteMigrations(path string) error {
	return run("migrations/sqlite", "sqlite3://"+path)
}

// RunPostgresMigrations applies all pending up-migrations to the database at dsn.
func RunPostgresMigrations(dsn string) error {
	return run("migrations/postgres", dsn)
}

func run(dir, dsn string) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	ver, dirty, _ := m.Version()
	slog.Info("database migrations applied", "source", dir, "version", ver, "dirty", dirty)
	return nil
}
