// Package pgxconn adapts a pgx pool connection to conn.Conn, emulating
// auto-commit mode with a lazily started pgx.Tx.
package pgxconn

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/errtag"
)

var (
	// ErrClosed is returned by operations on a released Conn.
	ErrClosed = errors.New("pgxconn: connection is closed")
	// ErrAutoCommit is returned by Commit, Rollback and SetSavepoint while
	// auto-commit is enabled.
	ErrAutoCommit = errors.New("pgxconn: connection is in auto-commit mode")
	// ErrInTransaction is returned by SetReadOnly while a local transaction is
	// open.
	ErrInTransaction = errors.New("pgxconn: read-only mode can not change inside a transaction")
)

// Conn is a conn.Conn over a *pgxpool.Conn. Close releases the connection
// back to its pool.
type Conn struct {
	base *pgxpool.Conn

	mu         sync.Mutex
	tx         pgx.Tx
	autoCommit bool
	readOnly   bool
	released   bool
}

var _ conn.Conn = (*Conn)(nil)

// New wraps c, which starts in auto-commit mode.
func New(c *pgxpool.Conn) *Conn {
	return &Conn{base: c, autoCommit: true}
}

// Acquire takes a connection from pool and wraps it.
func Acquire(ctx context.Context, pool *pgxpool.Pool) (*Conn, error) {
	c, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return New(c), nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Conn) target(ctx context.Context) (querier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, ErrClosed
	}
	if c.autoCommit {
		return c.base, nil
	}
	if c.tx == nil {
		opts := pgx.TxOptions{}
		if c.readOnly {
			opts.AccessMode = pgx.ReadOnly
		}
		tx, err := c.base.BeginTx(ctx, opts)
		if err != nil {
			return nil, tagTimeout(err)
		}
		c.tx = tx
	}
	return c.tx, nil
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (conn.Result, error) {
	q, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return nil, tagTimeout(err)
	}
	return result{tag}, nil
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (conn.Rows, error) {
	q, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	r, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, tagTimeout(err)
	}
	return rows{r}, nil
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) conn.Row {
	q, err := c.target(ctx)
	if err != nil {
		return conn.ErrRow(err)
	}
	return q.QueryRow(ctx, query, args...)
}

func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		return ErrClosed
	}
	return c.base.Ping(ctx)
}

func (c *Conn) AutoCommit(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false, ErrClosed
	}
	return c.autoCommit, nil
}

// SetAutoCommit switches auto-commit mode. Enabling it commits an open
// transaction first.
func (c *Conn) SetAutoCommit(ctx context.Context, autoCommit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrClosed
	}
	if autoCommit == c.autoCommit {
		return nil
	}
	if autoCommit && c.tx != nil {
		if err := c.tx.Commit(ctx); err != nil {
			return err
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
	return tagTimeout(tx.Commit(ctx))
}

func (c *Conn) Rollback(ctx context.Context) error {
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
	return tx.Rollback(ctx)
}

func (c *Conn) SetSavepoint(ctx context.Context, name string) error {
	c.mu.Lock()
	err := c.checkManual()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	q, err := c.target(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

func (c *Conn) IsReadOnly(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false, ErrClosed
	}
	return c.readOnly, nil
}

// SetReadOnly applies to transactions begun afterwards.
func (c *Conn) SetReadOnly(_ context.Context, readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
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
	return c.released || c.base.Conn().IsClosed(), nil
}

// Close rolls back an open transaction and releases the connection to its
// pool. Closing twice is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true

	var err error
	if c.tx != nil {
		err = c.tx.Rollback(ctx)
		c.tx = nil
	}
	c.base.Release()
	return err
}

func (c *Conn) checkManual() error {
	if c.released {
		return ErrClosed
	}
	if c.autoCommit {
		return ErrAutoCommit
	}
	return nil
}

type result struct {
	tag pgconn.CommandTag
}

func (r result) RowsAffected() (int64, error) {
	return r.tag.RowsAffected(), nil
}

type rows struct {
	pgx.Rows
}

func (r rows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

// tagTimeout tags deadline and transaction timeout errors as
// errtag.TransactionTimeout.
func tagTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errtag.Tag[errtag.TransactionTimeout](err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.IdleInTransactionSessionTimeout, pgerrcode.LockNotAvailable, "25P04":
			return errtag.Tag[errtag.TransactionTimeout](err)
		}
	}
	return err
}
