// Package xa provides a txn.Resource for connections that only understand
// local transactions.
package xa

import (
	"context"
	"errors"
	"sync"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/txn"
)

// Local emulates a two-phase commit participant on top of a connection's local
// transaction. Prepare always votes to commit (or read-only), so Local gives
// no atomicity guarantee when it is one of several participants; it is meant
// as the last, or only, resource of a transaction.
//
// Local must wrap the physical connection, not a managed proxy, since it
// issues Commit and Rollback.
type Local struct {
	conn conn.Conn

	mu                 sync.Mutex
	xid                txn.Xid
	active             bool
	originalAutoCommit bool
}

var _ txn.Resource = (*Local)(nil)

func NewLocal(c conn.Conn) *Local {
	return &Local{conn: c}
}

func (l *Local) Start(ctx context.Context, xid txn.Xid, flags int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch flags {
	case txn.FlagNone:
		if l.active {
			return txn.NewXAError(txn.ErrProto, nil, "already started on branch %s", l.xid)
		}
		autoCommit, err := l.conn.AutoCommit(ctx)
		if err != nil {
			return txn.NewXAError(txn.ErrRMErr, err, "read auto-commit")
		}
		if err = l.conn.SetAutoCommit(ctx, false); err != nil {
			return txn.NewXAError(txn.ErrRMErr, err, "disable auto-commit")
		}
		l.originalAutoCommit = autoCommit
		l.xid = xid
		l.active = true
		return nil
	case txn.FlagJoin, txn.FlagResume:
		return l.checkXid(xid)
	default:
		return txn.NewXAError(txn.ErrInval, nil, "unsupported start flags %#x", flags)
	}
}

func (l *Local) End(_ context.Context, xid txn.Xid, _ int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkXid(xid)
}

func (l *Local) Prepare(ctx context.Context, xid txn.Xid) (txn.Vote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkXid(xid); err != nil {
		return txn.VoteOK, err
	}

	readOnly, err := l.conn.IsReadOnly(ctx)
	if err != nil {
		return txn.VoteOK, txn.NewXAError(txn.ErrRMErr, err, "read read-only mode")
	}
	if readOnly {
		if err = l.release(ctx); err != nil {
			return txn.VoteOK, err
		}
		return txn.VoteReadOnly, nil
	}
	return txn.VoteOK, nil
}

func (l *Local) Commit(ctx context.Context, xid txn.Xid, _ bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkXid(xid); err != nil {
		return err
	}

	closed, err := l.conn.IsClosed(ctx)
	if err == nil && closed {
		err = errors.New("connection is closed")
	}
	if err == nil {
		err = l.conn.Commit(ctx)
	}
	if err != nil {
		_ = l.conn.Rollback(ctx)
		_ = l.release(ctx)
		return txn.NewXAError(txn.HeurRollback, err, "commit branch %s", xid)
	}
	return l.release(ctx)
}

func (l *Local) Rollback(ctx context.Context, xid txn.Xid) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkXid(xid); err != nil {
		return err
	}

	if err := l.conn.Rollback(ctx); err != nil {
		_ = l.release(ctx)
		return txn.NewXAError(txn.ErrRMErr, err, "rollback branch %s", xid)
	}
	return l.release(ctx)
}

func (l *Local) Forget(_ context.Context, xid txn.Xid) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active && l.xid.Equal(xid) {
		l.xid = txn.Xid{}
		l.active = false
	}
	return nil
}

// Recover returns no branches. Local branches do not survive a restart.
func (l *Local) Recover(context.Context, int) ([]txn.Xid, error) {
	return nil, nil
}

func (l *Local) IsSameRM(other txn.Resource) bool {
	o, ok := other.(*Local)
	return ok && o == l
}

func (l *Local) checkXid(xid txn.Xid) error {
	if !l.active {
		return txn.NewXAError(txn.ErrProto, nil, "no branch started")
	}
	if !l.xid.Equal(xid) {
		return txn.NewXAError(txn.ErrNota, nil, "unknown branch %s, current is %s", xid, l.xid)
	}
	return nil
}

// release ends the branch and restores the auto-commit mode the connection
// had at Start.
func (l *Local) release(ctx context.Context) error {
	l.xid = txn.Xid{}
	l.active = false
	if err := l.conn.SetAutoCommit(ctx, l.originalAutoCommit); err != nil {
		return txn.NewXAError(txn.ErrRMErr, err, "restore auto-commit")
	}
	return nil
}
