// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onnwee/citypulse/internal/db"
)

// Schema check failures.
var (
	ErrSchemaNotMigrated = errors.New("feed schema not migrated")
	ErrSchemaDirty       = errors.New("feed schema left dirty by a failed migration")
)

// Pinger is the part of *sql.DB the checker pings.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SchemaReader reports the applied migration version.
type SchemaReader func(ctx context.Context) (version uint, dirty bool, err error)

// DBChecker reports Postgres healthy when it answers a ping and the feed
// schema is migrated and clean.
type DBChecker struct {
	db     Pinger
	schema SchemaReader
}

// NewDBChecker creates a checker over the feed database.
func NewDBChecker(conn *sql.DB) *DBChecker {
	return newDBChecker(conn, func(ctx context.Context) (uint, bool, error) {
		return db.SchemaVersion(ctx, conn)
	})
}

func newDBChecker(p Pinger, schema SchemaReader) *DBChecker {
	return &DBChecker{db: p, schema: schema}
}

// HealthCheck pings the database and then checks the schema version.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	version, dirty, err := d.schema(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("postgres schema: %w", err)
	case dirty:
		return fmt.Errorf("%w at version %d", ErrSchemaDirty, version)
	case version == 0:
		return ErrSchemaNotMigrated
	}
	return nil
}
