// Package migrations applies the embedded schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/postgres"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/database/sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationsFS embed.FS

// Migrator runs schema migrations against one connection.
type Migrator struct {
	provider *goose.Provider
	logger   *slog.Logger
}

// New builds a migrator for the connection's driver.
func New(conn database.Connection, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db      *sql.DB
		dialect goose.Dialect
		dir     string
	)
	switch c := conn.(type) {
	case *postgres.Connection:
		db, dialect, dir = c.SQLDB(), goose.DialectPostgres, "postgres"
	case *sqlite.Connection:
		db, dialect, dir = c.DB(), goose.DialectSQLite3, "sqlite"
	default:
		return nil, fmt.Errorf("migrations: unsupported connection %T", conn)
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("migrations: create provider: %w", err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		m.logger.Info("applied migration",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration", r.Duration,
		)
	}
	if err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("migrations: down: %w", err)
	}
	m.logger.Info("rolled back migration", "version", r.Source.Version, "file", r.Source.Path)
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: version: %w", err)
	}
	return v, nil
}

// Pending reports how many migrations have not been applied.
func (m *Migrator) Pending(ctx context.Context) (int, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: status: %w", err)
	}
	n := 0
	for _, s := range statuses {
		if s.State == goose.StatePending {
			n++
		}
	}
	return n, nil
}

// Run is shorthand for New followed by Up.
func Run(ctx context.Context, conn database.Connection, logger *slog.Logger) error {
	m, err := New(conn, logger)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
