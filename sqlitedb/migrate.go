package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
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

// Migrate applies the migrations in fsys, up to the latest version or to the
// version given with WithVersion.
func Migrate(db *sql.DB, fsys fs.FS, opts ...MigrateOption) error {
	var mopts migrationOptions
	for _, opt := range opts {
		opt(&mopts)
	}

	return withMigrate(db, fsys, func(m *migrate.Migrate) error {
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

// Version reports the schema version of db and whether the last migration
// failed halfway. A database without migrations is at version 0.
func Version(db *sql.DB, fsys fs.FS) (version uint, dirty bool, err error) {
	err = withMigrate(db, fsys, func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

// withMigrate runs fn against db. The migrate instance is not closed since
// that would close db.
func withMigrate(db *sql.DB, fsys fs.FS, fn func(m *migrate.Migrate) error) error {
	sd, err := iofs.New(fsys, ".")
	if err != nil {
		return fmt.Errorf("open migrations fs: %w", err)
	}
	defer sd.Close() //nolint:errcheck

	driver, err := sqlite.WithInstance(db, new(sqlite.Config))
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sd, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	return fn(m)
}
