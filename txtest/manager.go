// Package txtest provides an in-memory transaction coordinator and a recording
// connection for tests of code that uses managed connections.
package txtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joshjon/txconn/id"
	"github.com/joshjon/txconn/txn"
)

type ctxKey struct{}

// Manager associates transactions with contexts.
type Manager struct {
	mu  sync.Mutex
	err error
}

var _ txn.Manager = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{}
}

// Begin starts a new active transaction and returns a context carrying it.
func (m *Manager) Begin(ctx context.Context) (context.Context, *Transaction) {
	tx := newTransaction()
	return context.WithValue(ctx, ctxKey{}, tx), tx
}

// Suspend returns a context with no ambient transaction.
func (m *Manager) Suspend(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, (*Transaction)(nil))
}

// FailLookups makes Transaction return err until called again with nil.
func (m *Manager) FailLookups(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Manager) Transaction(ctx context.Context) (txn.Transaction, error) {
	m.mu.Lock()
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	tx, _ := ctx.Value(ctxKey{}).(*Transaction)
	if tx == nil {
		return nil, nil
	}
	return tx, nil
}

// Transaction is an in-memory transaction. It drives enlisted resources
// through one-phase commit when a single resource is enlisted and two-phase
// commit otherwise.
type Transaction struct {
	id string

	mu          sync.Mutex
	status      txn.Status
	enlistErr   error
	registerErr error
	resources   []txn.Resource
	syncs       []txn.Synchronization
}

var (
	_ txn.Transaction = (*Transaction)(nil)
	_ txn.Completer   = (*Transaction)(nil)
)

func newTransaction() *Transaction {
	return &Transaction{
		id:     id.New[id.TxID]().String(),
		status: txn.StatusActive,
	}
}

func (t *Transaction) ID() string {
	return t.id
}

func (t *Transaction) Status() (txn.Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, nil
}

// SetStatus forces the transaction status without running completion.
func (t *Transaction) SetStatus(s txn.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *Transaction) SetRollbackOnly() {
	t.SetStatus(txn.StatusMarkedRollback)
}

// FailEnlist makes EnlistResource return err.
func (t *Transaction) FailEnlist(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enlistErr = err
}

func (t *Transaction) EnlistResource(ctx context.Context, r txn.Resource) error {
	t.mu.Lock()
	switch {
	case t.enlistErr != nil:
		t.mu.Unlock()
		return t.enlistErr
	case t.status == txn.StatusMarkedRollback:
		t.mu.Unlock()
		return txn.ErrRollback
	case t.status != txn.StatusActive:
		t.mu.Unlock()
		return fmt.Errorf("txtest: enlist in %s transaction", t.status)
	}
	xid := t.branch(len(t.resources))
	t.resources = append(t.resources, r)
	t.mu.Unlock()

	return r.Start(ctx, xid, txn.FlagNone)
}

// FailRegister makes RegisterSynchronization return err.
func (t *Transaction) FailRegister(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerErr = err
}

func (t *Transaction) RegisterSynchronization(s txn.Synchronization) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registerErr != nil {
		return t.registerErr
	}
	if !t.status.UnderTransaction() {
		return fmt.Errorf("txtest: register synchronization in %s transaction", t.status)
	}
	t.syncs = append(t.syncs, s)
	return nil
}

// Resources returns the enlisted resources in enlistment order.
func (t *Transaction) Resources() []txn.Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]txn.Resource(nil), t.resources...)
}

// Synchronizations returns the registered synchronizations in registration
// order.
func (t *Transaction) Synchronizations() []txn.Synchronization {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]txn.Synchronization(nil), t.syncs...)
}

// Commit completes the transaction. A transaction marked for rollback is
// rolled back and txn.ErrRollback returned.
func (t *Transaction) Commit(ctx context.Context) error {
	if s, _ := t.Status(); s == txn.StatusMarkedRollback {
		if err := t.Rollback(ctx); err != nil {
			return err
		}
		return txn.ErrRollback
	} else if s != txn.StatusActive {
		return fmt.Errorf("txtest: commit %s transaction", s)
	}

	for _, s := range t.Synchronizations() {
		s.BeforeCompletion(ctx)
	}

	resources := t.Resources()
	t.SetStatus(txn.StatusPreparing)

	var err error
	for i, r := range resources {
		err = errors.Join(err, r.End(ctx, t.branch(i), txn.FlagSuccess))
	}

	if err == nil {
		err = t.commitResources(ctx, resources)
	}
	if err != nil {
		for i, r := range resources {
			_ = r.Rollback(ctx, t.branch(i))
		}
		t.complete(ctx, txn.StatusRolledBack)
		return fmt.Errorf("txtest: commit: %w", err)
	}

	t.complete(ctx, txn.StatusCommitted)
	return nil
}

func (t *Transaction) commitResources(ctx context.Context, resources []txn.Resource) error {
	if len(resources) == 1 {
		t.SetStatus(txn.StatusCommitting)
		return resources[0].Commit(ctx, t.branch(0), true)
	}

	readOnly := make([]bool, len(resources))
	for i, r := range resources {
		vote, err := r.Prepare(ctx, t.branch(i))
		if err != nil {
			return err
		}
		readOnly[i] = vote == txn.VoteReadOnly
	}
	t.SetStatus(txn.StatusPrepared)

	t.SetStatus(txn.StatusCommitting)
	var err error
	for i, r := range resources {
		if readOnly[i] {
			continue
		}
		err = errors.Join(err, r.Commit(ctx, t.branch(i), false))
	}
	return err
}

// Rollback rolls back every enlisted resource and completes the transaction.
func (t *Transaction) Rollback(ctx context.Context) error {
	if s, _ := t.Status(); !s.UnderTransaction() {
		return fmt.Errorf("txtest: rollback %s transaction", s)
	}

	t.SetStatus(txn.StatusRollingBack)
	var err error
	for i, r := range t.Resources() {
		_ = r.End(ctx, t.branch(i), txn.FlagFail)
		err = errors.Join(err, r.Rollback(ctx, t.branch(i)))
	}
	t.complete(ctx, txn.StatusRolledBack)
	return err
}

func (t *Transaction) complete(ctx context.Context, status txn.Status) {
	t.SetStatus(status)
	for _, s := range t.Synchronizations() {
		s.AfterCompletion(ctx, status)
	}
}

func (t *Transaction) branch(i int) txn.Xid {
	return txn.Xid{
		FormatID:        1,
		GlobalID:        []byte(t.id),
		BranchQualifier: []byte{byte(i)},
	}
}
