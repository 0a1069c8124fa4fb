package pgdb

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

type migrationOptions struct {
	version *uint
}

type MigrateOption func(opts *migrationOptions)

func WithVersion(version uint) MigrateOption {
	return func(opts *migrationOptions) {
		opts.version = &version
	}
}

// Migrate applies the migrations in fsys through a database/sql handle opened
// on pool, up to the latest version or to the version given with WithVersion.
func Migrate(pool *pgxpool.Pool, fsys fs.FS, opts ...MigrateOption) error {
	var mopts migrationOptions
	for _, opt := range opts {
		opt(&mopts)
	}

	return withMigrate(pool, fsys, func(m *migrate.Migrate) error {
		var err error
		if mopts.version != nil {
			err = m.Migrate(*mopts.version)
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	})
}

// Version reports the schema version of the database behind pool and whether
// the last migration failed halfway. A database without migrations is at
// version 0.
func Version(pool *pgxpool.Pool, fsys fs.FS) (version uint, dirty bool, err error) {
	err = withMigrate(pool, fsys, func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func withMigrate(pool *pgxpool.Pool, fsys fs.FS, fn func(m *migrate.Migrate) error) error {
	sd, err := iofs.New(fsys, ".")
	if err != nil {
		return fmt.Errorf("open migrations fs: %w", err)
	}
	defer sd.Close() //nolint:errcheck

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close() //nolint:errcheck

	driver, err := postgres.WithInstance(db, new(postgres.Config))
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	defer driver.Close() //nolint:errcheck

	m, err := migrate.NewWithInstance("iofs", sd, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	return fn(m)
}
