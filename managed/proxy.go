// Package managed wraps physical database connections so they take part in the
// ambient distributed transaction reported by a txn.Manager.
//
// A Proxy forwards every call straight to its connection while no transaction
// is ambient. Under an active transaction the first call enlists the
// connection (or switches to the connection another proxy already enlisted
// for that transaction), disables auto-commit and from then on:
//
//   - SetAutoCommit, Commit, Rollback, SetSavepoint and SetReadOnly fail with
//     ForbiddenCallError, the coordinator owns the transaction boundaries;
//   - Close is accepted but deferred until the transaction completes;
//   - everything else reaches the connection and its errors are returned as
//     they are.
package managed

import (
	"context"
	"errors"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/id"
	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/txn"
	"github.com/joshjon/txconn/xa"
)

// AcquireFunc obtains a fresh physical connection, typically from a pool.
type AcquireFunc func(ctx context.Context) (conn.Conn, error)

// ResourceFunc builds the two-phase commit participant enlisted for a
// physical connection.
type ResourceFunc func(c conn.Conn) txn.Resource

// Option optionally configures a Proxy.
type Option func(opts *options)

// WithLogger sets a custom Logger.
func WithLogger(logger log.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithResourceFunc overrides how the enlisted resource is built. Defaults to
// a local transaction resource (xa.NewLocal).
func WithResourceFunc(fn ResourceFunc) Option {
	return func(opts *options) {
		opts.resourceFunc = fn
	}
}

// WithAcquireFunc lets the proxy replace a connection it closed because the
// transaction it was enlisted in has completed. Without it the proxy keeps
// the closed connection.
func WithAcquireFunc(fn AcquireFunc) Option {
	return func(opts *options) {
		opts.acquire = fn
	}
}

type options struct {
	logger       log.Logger
	resourceFunc ResourceFunc
	acquire      AcquireFunc
}

// Proxy is a conn.Conn that enlists its connection in the ambient transaction.
//
// A Proxy is not safe for concurrent use. Like the connection it wraps, it
// must be driven by one goroutine at a time.
type Proxy struct {
	id           id.ProxyID
	manager      txn.Manager
	registry     *Registry
	resourceFunc ResourceFunc
	acquire      AcquireFunc
	logger       log.Logger

	delegate conn.Conn
	current  txn.Transaction
}

var _ conn.Conn = (*Proxy)(nil)

// New wraps c. Proxies sharing registry share one connection per transaction,
// which requires connections to be comparable (pointer types in practice).
//
// Once the transaction a proxy is enlisted in completes, its connection is
// closed. Only a proxy built WithAcquireFunc can enlist again in a later
// transaction; without it further calls under a transaction fail with
// EnlistmentFailedError, and outside one they reach the closed connection.
func New(c conn.Conn, manager txn.Manager, registry *Registry, opts ...Option) *Proxy {
	options := options{
		logger: log.NewLogger(),
		resourceFunc: func(c conn.Conn) txn.Resource {
			return xa.NewLocal(c)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	pid := id.New[id.ProxyID]()
	return &Proxy{
		id:           pid,
		manager:      manager,
		registry:     registry,
		resourceFunc: options.resourceFunc,
		acquire:      options.acquire,
		logger:       options.logger.With("conn_id", pid.String()),
		delegate:     c,
	}
}

// ID identifies the proxy in logs.
func (p *Proxy) ID() string {
	return p.id.String()
}

// Delegate returns the physical connection calls are currently forwarded to.
func (p *Proxy) Delegate() conn.Conn {
	return p.delegate
}

// Transaction returns the transaction the proxy last enlisted with, or nil.
func (p *Proxy) Transaction() txn.Transaction {
	return p.current
}

func (p *Proxy) intercept(ctx context.Context, op conn.Op, call func(c conn.Conn) error) error {
	tx, err := p.manager.Transaction(ctx)
	if err != nil {
		return err
	}
	if tx == nil {
		return call(p.delegate)
	}

	if p.current != nil {
		status, err := p.current.Status()
		if err != nil {
			return err
		}
		if status.UnderTransaction() {
			if p.current.ID() != tx.ID() {
				return crossTransactionError(p.current.ID(), tx.ID())
			}
			return p.underTransaction(op, call)
		}
		if err = p.releaseStale(ctx, status); err != nil {
			return err
		}
	}

	status, err := tx.Status()
	if err != nil {
		return err
	}
	if !status.UnderTransaction() {
		return call(p.delegate)
	}

	if err = p.enlist(ctx, tx); err != nil {
		return err
	}
	return p.underTransaction(op, call)
}

// releaseStale drops the connection of a transaction that has completed.
func (p *Proxy) releaseStale(ctx context.Context, status txn.Status) error {
	p.logger.Debug("enlisted transaction has completed, closing connection",
		"tx_id", p.current.ID(), "status", status.String())
	closeQuietly(ctx, p.delegate, p.logger)
	p.current = nil

	if p.acquire == nil {
		return nil
	}
	c, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	p.delegate = c
	return nil
}

func (p *Proxy) enlist(ctx context.Context, tx txn.Transaction) error {
	txID := tx.ID()
	logger := p.logger.With("tx_id", txID)

	shared, loaded := p.registry.PutIfAbsent(txID, p.delegate)
	if loaded {
		if shared != p.delegate {
			logger.Debug("joining connection already enlisted in transaction")
			if err := p.delegate.Close(ctx); err != nil {
				return err
			}
			p.delegate = shared
		}
		p.current = tx
	} else {
		p.current = tx
		logger.Debug("enlisting connection in transaction")
		if err := tx.EnlistResource(ctx, p.resourceFunc(p.delegate)); err != nil {
			if !errors.Is(err, txn.ErrRollback) {
				p.registry.Remove(txID)
				p.current = nil
				return enlistmentFailedError(txID, err)
			}
			logger.Debug("transaction is rolling back, enlistment skipped")
		}
	}

	listener := &closingSync{
		conn:     p.delegate,
		txID:     txID,
		registry: p.registry,
		logger:   logger,
	}
	if err := tx.RegisterSynchronization(listener); err != nil {
		// Nothing closes the connection or drops the entry without a
		// listener.
		if !loaded {
			p.registry.Remove(txID)
		}
		p.current = nil
		return err
	}

	return p.delegate.SetAutoCommit(ctx, false)
}

func (p *Proxy) underTransaction(op conn.Op, call func(c conn.Conn) error) error {
	if op.TransactionBoundary() {
		return forbiddenCallError(op)
	}
	if op == conn.OpClose {
		return nil
	}
	return call(p.delegate)
}

func (p *Proxy) Exec(ctx context.Context, query string, args ...any) (conn.Result, error) {
	var res conn.Result
	err := p.intercept(ctx, conn.OpExec, func(c conn.Conn) error {
		var err error
		res, err = c.Exec(ctx, query, args...)
		return err
	})
	return res, err
}

func (p *Proxy) Query(ctx context.Context, query string, args ...any) (conn.Rows, error) {
	var rows conn.Rows
	err := p.intercept(ctx, conn.OpQuery, func(c conn.Conn) error {
		var err error
		rows, err = c.Query(ctx, query, args...)
		return err
	})
	return rows, err
}

func (p *Proxy) QueryRow(ctx context.Context, query string, args ...any) conn.Row {
	var row conn.Row
	err := p.intercept(ctx, conn.OpQueryRow, func(c conn.Conn) error {
		row = c.QueryRow(ctx, query, args...)
		return nil
	})
	if err != nil {
		return conn.ErrRow(err)
	}
	return row
}

func (p *Proxy) Ping(ctx context.Context) error {
	return p.intercept(ctx, conn.OpPing, func(c conn.Conn) error {
		return c.Ping(ctx)
	})
}

func (p *Proxy) AutoCommit(ctx context.Context) (bool, error) {
	var autoCommit bool
	err := p.intercept(ctx, conn.OpAutoCommit, func(c conn.Conn) error {
		var err error
		autoCommit, err = c.AutoCommit(ctx)
		return err
	})
	return autoCommit, err
}

func (p *Proxy) SetAutoCommit(ctx context.Context, autoCommit bool) error {
	return p.intercept(ctx, conn.OpSetAutoCommit, func(c conn.Conn) error {
		return c.SetAutoCommit(ctx, autoCommit)
	})
}

func (p *Proxy) Commit(ctx context.Context) error {
	return p.intercept(ctx, conn.OpCommit, func(c conn.Conn) error {
		return c.Commit(ctx)
	})
}

func (p *Proxy) Rollback(ctx context.Context) error {
	return p.intercept(ctx, conn.OpRollback, func(c conn.Conn) error {
		return c.Rollback(ctx)
	})
}

func (p *Proxy) SetSavepoint(ctx context.Context, name string) error {
	return p.intercept(ctx, conn.OpSetSavepoint, func(c conn.Conn) error {
		return c.SetSavepoint(ctx, name)
	})
}

func (p *Proxy) IsReadOnly(ctx context.Context) (bool, error) {
	var readOnly bool
	err := p.intercept(ctx, conn.OpIsReadOnly, func(c conn.Conn) error {
		var err error
		readOnly, err = c.IsReadOnly(ctx)
		return err
	})
	return readOnly, err
}

func (p *Proxy) SetReadOnly(ctx context.Context, readOnly bool) error {
	return p.intercept(ctx, conn.OpSetReadOnly, func(c conn.Conn) error {
		return c.SetReadOnly(ctx, readOnly)
	})
}

func (p *Proxy) IsClosed(ctx context.Context) (bool, error) {
	var closed bool
	err := p.intercept(ctx, conn.OpIsClosed, func(c conn.Conn) error {
		var err error
		closed, err = c.IsClosed(ctx)
		return err
	})
	return closed, err
}

// Close closes the connection, or defers closing it until the transaction it
// is enlisted in completes.
//
// Whether Close is deferred depends on ctx: with a ctx that carries no ambient
// transaction, such as context.Background(), the connection is closed at once
// even while enlisted and shared with other proxies. Close with the ctx the
// connection was used under.
func (p *Proxy) Close(ctx context.Context) error {
	return p.intercept(ctx, conn.OpClose, func(c conn.Conn) error {
		return c.Close(ctx)
	})
}
