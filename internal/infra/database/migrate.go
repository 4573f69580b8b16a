package database

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"

	_ "github.com/lib/pq"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func migrationDir(driver string) (dialect goose.Dialect, dir string, err error) {
	switch driver {
	case DriverPostgres:
		return goose.DialectPostgres, "migrations/postgres", nil
	case DriverSQLite:
		return goose.DialectSQLite3, "migrations/sqlite", nil
	default:
		return "", "", eris.Errorf("database: unknown driver %q", driver)
	}
}

// OpenMigrationDB returns the database/sql handle goose runs against. Postgres goes
// through lib/pq since the application pool is pgx native.
func OpenMigrationDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, eris.Wrap(err, "database: open postgres for migrations")
		}
		return db, nil
	case DriverSQLite:
		return NewSQLiteDB(dsn)
	default:
		return nil, eris.Errorf("database: unknown driver %q", driver)
	}
}

// Migrate applies every pending migration for driver.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	dialect, dir, err := migrationDir(driver)
	if err != nil {
		return err
	}

	provider, err := newProvider(db, dialect, dir)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return eris.Wrap(err, "database: migrate up")
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB, driver string) error {
	dialect, dir, err := migrationDir(driver)
	if err != nil {
		return err
	}

	provider, err := newProvider(db, dialect, dir)
	if err != nil {
		return err
	}
	if _, err := provider.Down(ctx); err != nil {
		return eris.Wrap(err, "database: migrate down")
	}
	return nil
}

// MigrationVersion reports the highest applied migration.
func MigrationVersion(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	dialect, dir, err := migrationDir(driver)
	if err != nil {
		return 0, err
	}

	provider, err := newProvider(db, dialect, dir)
	if err != nil {
		return 0, err
	}
	v, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "database: read migration version")
	}
	return v, nil
}

func newProvider(db *sql.DB, dialect goose.Dialect, dir string) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, eris.Wrap(err, "database: migrations fs")
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, eris.Wrap(err, "database: goose provider")
	}
	return provider, nil
}
