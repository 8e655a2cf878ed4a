package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.err
}

func schemaAt(version uint, dirty bool, err error) SchemaReader {
	return func(context.Context) (uint, bool, error) { return version, dirty, err }
}

func TestDBChecker_HealthCheck(t *testing.T) {
	errRefused := errors.New("connection refused")
	errNoTable := errors.New(`relation "schema_migrations" does not exist`)

	tests := []struct {
		name    string
		ping    error
		schema  SchemaReader
		wantErr error
	}{
		{"migrated", nil, schemaAt(1, false, nil), nil},
		{"ping fails", errRefused, schemaAt(1, false, nil), errRefused},
		{"schema unreadable", nil, schemaAt(0, false, errNoTable), errNoTable},
		{"never migrated", nil, schemaAt(0, false, nil), ErrSchemaNotMigrated},
		{"dirty", nil, schemaAt(1, true, nil), ErrSchemaDirty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newDBChecker(fakePinger{err: tt.ping}, tt.schema).HealthCheck(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("HealthCheck() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HealthCheck() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDBChecker_SkipsSchemaWhenPingFails(t *testing.T) {
	read := false
	checker := newDBChecker(fakePinger{}, func(context.Context) (uint, bool, error) {
		read = true
		return 1, false, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := checker.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
	if read {
		t.Error("expected the schema not to be read after a failed ping")
	}
}
