package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending migration from the embedded set. Running it
// against an up-to-date schema is a no-op.
func Migrate(ctx context.Context, conn *sql.DB, logger *slog.Logger) error {
	return withMigrator(ctx, conn, logger, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// Rollback reverts every applied migration.
func Rollback(ctx context.Context, conn *sql.DB, logger *slog.Logger) error {
	return withMigrator(ctx, conn, logger, func(m *migrate.Migrate) error {
		return m.Down()
	})
}

// SchemaVersion returns the applied version and whether a failed migration
// left it dirty. A database that was never migrated reports version 0.
func SchemaVersion(ctx context.Context, conn *sql.DB) (version uint, dirty bool, err error) {
	var v int64
	err = conn.QueryRowContext(ctx,
		`SELECT version, dirty FROM `+MigrationsTable+` LIMIT 1`,
	).Scan(&v, &dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return uint(v), dirty, nil
}

func withMigrator(ctx context.Context, conn *sql.DB, logger *slog.Logger, step func(*migrate.Migrate) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, c, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		src.Close()
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{logger}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", slog.Any("source_error", srcErr), slog.Any("database_error", dbErr))
		}
	}()

	// migrate has no context support; a cancelled ctx stops it between
	// migrations.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	err = step(m)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		logger.Info("schema has no migrations applied")
	case verr != nil:
		return fmt.Errorf("failed to read schema version: %w", verr)
	default:
		logger.Info("schema migrated",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
			slog.Bool("changed", err == nil))
	}
	return nil
}

// migrateLogger routes migrate's progress lines to slog at debug level.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
