// Package sqlconn adapts a database/sql connection to conn.Conn, emulating
// auto-commit mode with a lazily started *sql.Tx.
package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"modernc.org/sqlite"
	lib "modernc.org/sqlite/lib"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/errtag"
)

var (
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("sqlconn: connection is closed")
	// ErrAutoCommit is returned by Commit, Rollback and SetSavepoint while
	// auto-commit is enabled.
	ErrAutoCommit = errors.New("sqlconn: connection is in auto-commit mode")
	// ErrInTransaction is returned by SetReadOnly while a local transaction is
	// open.
	ErrInTransaction = errors.New("sqlconn: read-only mode can not change inside a transaction")
)

// Conn is a conn.Conn over a *sql.Conn. Disabling auto-commit makes the next
// statement begin a transaction that Commit or Rollback ends.
type Conn struct {
	base *sql.Conn

	mu         sync.Mutex
	tx         *sql.Tx
	autoCommit bool
	readOnly   bool
	closed     bool
}

var _ conn.Conn = (*Conn)(nil)

// New wraps c, which starts in auto-commit mode.
func New(c *sql.Conn) *Conn {
	return &Conn{base: c, autoCommit: true}
}

// Acquire takes a connection from db and wraps it.
func Acquire(ctx context.Context, db *sql.DB) (*Conn, error) {
	c, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return New(c), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// target returns the handle statements run on: the open transaction, a newly
// begun one when auto-commit is off, or the bare connection.
func (c *Conn) target(ctx context.Context) (execer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.autoCommit {
		return c.base, nil
	}
	if c.tx == nil {
		tx, err := c.base.BeginTx(ctx, &sql.TxOptions{ReadOnly: c.readOnly})
		if err != nil {
			return nil, tagTimeout(err)
		}
		c.tx = tx
	}
	return c.tx, nil
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (conn.Result, error) {
	t, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	res, err := t.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, tagTimeout(err)
	}
	return res, nil
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (conn.Rows, error) {
	t, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := t.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tagTimeout(err)
	}
	return rows, nil
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) conn.Row {
	t, err := c.target(ctx)
	if err != nil {
		return conn.ErrRow(err)
	}
	return t.QueryRowContext(ctx, query, args...)
}

func (c *Conn) Ping(ctx context.Context) error {
	if closed, _ := c.IsClosed(ctx); closed {
		return ErrClosed
	}
	return c.base.PingContext(ctx)
}

func (c *Conn) AutoCommit(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.autoCommit, nil
}

// SetAutoCommit switches auto-commit mode. Enabling it commits an open
// transaction first.
func (c *Conn) SetAutoCommit(ctx context.Context, autoCommit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if autoCommit == c.autoCommit {
		return nil
	}
	if autoCommit && c.tx != nil {
		if err := commitTx(ctx, c.tx); err != nil {
			return tagTimeout(err)
		}
		c.tx = nil
	}
	c.autoCommit = autoCommit
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkManual(); err != nil {
		return err
	}
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tagTimeout(commitTx(ctx, tx))
}

func (c *Conn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkManual(); err != nil {
		return err
	}
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Rollback()
}

// SetSavepoint marks a savepoint in the current transaction, beginning one if
// needed.
func (c *Conn) SetSavepoint(ctx context.Context, name string) error {
	c.mu.Lock()
	err := c.checkManual()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	t, err := c.target(ctx)
	if err != nil {
		return err
	}
	_, err = t.ExecContext(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

func (c *Conn) IsReadOnly(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.readOnly, nil
}

// SetReadOnly applies to transactions begun afterwards.
func (c *Conn) SetReadOnly(_ context.Context, readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.tx != nil {
		return ErrInTransaction
	}
	c.readOnly = readOnly
	return nil
}

func (c *Conn) IsClosed(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, nil
}

// Close rolls back an open transaction and returns the connection to its
// pool. Closing twice is a no-op.
func (c *Conn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var rbErr error
	if c.tx != nil {
		rbErr = c.tx.Rollback()
		c.tx = nil
	}
	return errors.Join(rbErr, c.base.Close())
}

func (c *Conn) checkManual() error {
	if c.closed {
		return ErrClosed
	}
	if c.autoCommit {
		return ErrAutoCommit
	}
	return nil
}

// commitTx commits tx, giving up and rolling back if ctx expires first.
func commitTx(ctx context.Context, tx *sql.Tx) error {
	done := make(chan error, 1)
	go func() { done <- tx.Commit() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = tx.Rollback() // may already be closed
		return ctx.Err()
	}
}

// tagTimeout tags deadline and busy database errors as
// errtag.TransactionTimeout.
func tagTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errtag.Tag[errtag.TransactionTimeout](err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case lib.SQLITE_BUSY, lib.SQLITE_LOCKED:
			return errtag.Tag[errtag.TransactionTimeout](err)
		}
	}
	return err
}
