package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

const (
	healthRetryInterval = time.Second
	healthMaxRetries    = 5
)

type OpenOption func(opts *openOpts)

// WithDir sets the directory used to store the SQLite database file.
func WithDir(dir string) OpenOption {
	return func(opts *openOpts) {
		opts.dir = dir
	}
}

// WithDBName sets the SQLite database name used when creating the `<dbName>.db`
// file. This option has no effect when WithInMemory is used.
func WithDBName(dbName string) OpenOption {
	return func(opts *openOpts) {
		opts.dbName = dbName
	}
}

// WithInMemory configures the connection to use an in-memory SQLite database.
// Every connection to ":memory:" sees its own database, so the pool is capped
// at a single connection.
func WithInMemory() OpenOption {
	return func(opts *openOpts) {
		opts.inMemory = true
	}
}

// WithMaxOpenConns sets the pool size of file backed databases. Defaults to 1
// since sqlite only supports a single writer at a time; raise it when several
// connections must be held at once, for example by managed connections
// waiting to join a transaction.
func WithMaxOpenConns(n int) OpenOption {
	return func(opts *openOpts) {
		opts.maxOpenConns = n
	}
}

type openOpts struct {
	dir          string
	dbName       string
	inMemory     bool
	maxOpenConns int
}

func Open(ctx context.Context, opts ...OpenOption) (*sql.DB, error) {
	o := openOpts{maxOpenConns: 1}
	for _, opt := range opts {
		opt(&o)
	}

	// Pragmas in the DSN apply to every connection the pool opens.
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	var dsn string
	if o.inMemory {
		dsn = ":memory:?" + pragmas
		o.maxOpenConns = 1
	} else {
		if o.dbName == "" {
			o.dbName = "app"
		}
		file := o.dbName + ".db"
		if o.dir != "" {
			if err := os.MkdirAll(o.dir, 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
			file = strings.TrimSuffix(o.dir, "/") + "/" + file
		}
		// WAL only for file backed DBs
		dsn = "file:" + file + "?" + pragmas + "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if o.maxOpenConns < 1 {
		o.maxOpenConns = 1
	}
	db.SetMaxOpenConns(o.maxOpenConns)

	if err = waitHealthy(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func waitHealthy(ctx context.Context, db *sql.DB) error {
	pingFn := func() error {
		pctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return db.PingContext(pctx)
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(healthRetryInterval), healthMaxRetries),
		ctx,
	)
	if err := backoff.Retry(pingFn, bo); err != nil {
		return fmt.Errorf("sqlite connection unhealthy: %w", err)
	}
	return nil
}
