// Package datasource hands out managed connections backed by a database pool.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/errtag"
	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/managed"
	"github.com/joshjon/txconn/pgdb"
	"github.com/joshjon/txconn/pgxconn"
	"github.com/joshjon/txconn/sqlconn"
	"github.com/joshjon/txconn/sqlitedb"
	"github.com/joshjon/txconn/txn"
)

// Option optionally configures a DataSource.
type Option func(opts *options)

// WithLogger sets a custom Logger. Defaults to a JSON logger at the configured
// level.
func WithLogger(logger log.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithRegistry shares a transaction registry between data sources that reach
// the same database. Defaults to a registry owned by the DataSource.
func WithRegistry(registry *managed.Registry) Option {
	return func(opts *options) {
		opts.registry = registry
	}
}

// WithMigrations applies the migrations in fsys when the DataSource opens.
func WithMigrations(fsys fs.FS) Option {
	return func(opts *options) {
		opts.migrations = fsys
	}
}

// WithProxyOptions passes options to every managed connection.
func WithProxyOptions(proxyOpts ...managed.Option) Option {
	return func(opts *options) {
		opts.proxyOpts = append(opts.proxyOpts, proxyOpts...)
	}
}

type options struct {
	logger     log.Logger
	registry   *managed.Registry
	migrations fs.FS
	proxyOpts  []managed.Option
}

// DataSource wraps pooled connections in managed proxies that enlist in the
// ambient transaction of manager.
type DataSource struct {
	manager   txn.Manager
	registry  *managed.Registry
	acquire   managed.AcquireFunc
	closeFunc func() error
	logger    log.Logger
	proxyOpts []managed.Option
}

// New builds a DataSource over any connection source.
func New(acquire managed.AcquireFunc, closeFunc func() error, manager txn.Manager, opts ...Option) *DataSource {
	options := options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = log.NewLogger()
	}
	if options.registry == nil {
		options.registry = managed.NewRegistry()
	}
	if closeFunc == nil {
		closeFunc = func() error { return nil }
	}

	proxyOpts := append([]managed.Option{
		managed.WithLogger(options.logger),
		managed.WithAcquireFunc(acquire),
	}, options.proxyOpts...)

	return &DataSource{
		manager:   manager,
		registry:  options.registry,
		acquire:   acquire,
		closeFunc: closeFunc,
		logger:    options.logger,
		proxyOpts: proxyOpts,
	}
}

// Open connects to the database described by cfg, applies migrations when
// configured and returns a DataSource over it.
func Open(ctx context.Context, cfg Config, manager txn.Manager, opts ...Option) (*DataSource, error) {
	if err := cfg.Validation().ToError(); err != nil {
		return nil, errtag.Tag[errtag.InvalidArgument](fmt.Errorf("invalid datasource config: %w", err))
	}

	var options options
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		level, _ := log.ParseLevel(cfg.LogLevel)
		opts = append(opts, WithLogger(log.NewLogger(log.WithLevel(level))))
	}

	switch cfg.Driver {
	case DriverPostgres:
		dialOpts := []pgdb.DialOption{pgdb.WithMaxConns(int32(cfg.MaxOpenConns))}
		if cfg.TLS.Enabled {
			dialOpts = append(dialOpts, pgdb.WithTLS(pgdb.TLSConfig{
				CertFile:           cfg.TLS.CertFile,
				KeyFile:            cfg.TLS.KeyFile,
				CACertFile:         cfg.TLS.CACertFile,
				InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
			}))
		}
		pool, err := pgdb.DialURL(ctx, cfg.URL, dialOpts...)
		if err != nil {
			return nil, errtag.Tag[errtag.Unavailable](fmt.Errorf("dial postgres: %w", err))
		}
		if options.migrations != nil {
			if err = pgdb.Migrate(pool, options.migrations); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return NewPostgres(pool, manager, opts...), nil
	default:
		db, err := sqlitedb.Open(ctx,
			sqlitedb.WithDir(cfg.SQLiteDir),
			sqlitedb.WithDBName(cfg.SQLiteName),
			sqlitedb.WithMaxOpenConns(cfg.MaxOpenConns),
		)
		if err != nil {
			return nil, errtag.Tag[errtag.Unavailable](fmt.Errorf("open sqlite: %w", err))
		}
		if options.migrations != nil {
			if err = sqlitedb.Migrate(db, options.migrations); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return NewSQL(db, manager, opts...), nil
	}
}

// NewSQL builds a DataSource over a database/sql pool. Close closes db.
func NewSQL(db *sql.DB, manager txn.Manager, opts ...Option) *DataSource {
	acquire := func(ctx context.Context) (conn.Conn, error) {
		return sqlconn.Acquire(ctx, db)
	}
	return New(acquire, db.Close, manager, opts...)
}

// NewPostgres builds a DataSource over a pgx pool. Close closes pool.
func NewPostgres(pool *pgxpool.Pool, manager txn.Manager, opts ...Option) *DataSource {
	acquire := func(ctx context.Context) (conn.Conn, error) {
		return pgxconn.Acquire(ctx, pool)
	}
	return New(acquire, func() error {
		pool.Close()
		return nil
	}, manager, opts...)
}

// Conn takes a connection from the pool and wraps it in a managed proxy.
// Closing the proxy returns the connection to the pool, immediately without
// an ambient transaction or once the transaction it is enlisted in completes.
func (d *DataSource) Conn(ctx context.Context) (*managed.Proxy, error) {
	c, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return managed.New(c, d.manager, d.registry, d.proxyOpts...), nil
}

// Registry returns the registry shared by the DataSource's connections.
func (d *DataSource) Registry() *managed.Registry {
	return d.registry
}

// Close closes the underlying pool.
func (d *DataSource) Close() error {
	return d.closeFunc()
}
