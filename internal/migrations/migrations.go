// Package migrations applies the embedded SQL schema migrations with goose.
//
// Each supported driver has its own directory of migrations so that column
// types can follow the dialect.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedded embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func dialectFor(driver string) (goose.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return goose.DialectSQLite3, nil
	case DriverPostgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func newProvider(db *sql.DB, driver string) (*goose.Provider, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	fsys, err := fs.Sub(embedded, driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations for %s: %w", driver, err)
	}

	return goose.NewProvider(dialect, db, fsys)
}

// Up applies every pending migration and returns the number applied.
// Running it against an up-to-date schema is a no-op.
func Up(ctx context.Context, db *sql.DB, driver string) (int, error) {
	provider, err := newProvider(db, driver)
	if err != nil {
		return 0, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("apply migrations: %w", err)
	}

	return len(results), nil
}

// Status reports the current schema version and whether migrations are pending.
func Status(ctx context.Context, db *sql.DB, driver string) (int64, bool, error) {
	provider, err := newProvider(db, driver)
	if err != nil {
		return 0, false, err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}

	pending, err := provider.HasPending(ctx)
	if err != nil {
		return version, false, fmt.Errorf("check pending migrations: %w", err)
	}

	return version, pending, nil
}
