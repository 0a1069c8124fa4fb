// Package txn declares the boundary to a distributed transaction coordinator:
// the ambient transaction lookup, transaction status, resource enlistment and
// completion callbacks. The coordinator itself lives outside this module.
package txn

import (
	"context"
	"errors"
)

// ErrRollback is reported by a Transaction when work can no longer be
// enlisted or registered because the transaction is rolling back or marked
// for rollback.
var ErrRollback = errors.New("txn: transaction is marked for rollback")

// Manager resolves the ambient transaction of a context.
type Manager interface {
	// Transaction returns the transaction associated with ctx, or nil when
	// there is none.
	Transaction(ctx context.Context) (Transaction, error)
}

// Transaction is a coordinator-owned transaction. ID must be unique for the
// lifetime of the coordinator and stable for the life of the transaction.
type Transaction interface {
	ID() string
	Status() (Status, error)
	// EnlistResource makes r a participant of the two-phase commit protocol.
	// Errors matching ErrRollback mean the transaction is already doomed.
	EnlistResource(ctx context.Context, r Resource) error
	// RegisterSynchronization registers s to be told about completion.
	RegisterSynchronization(s Synchronization) error
}

// Synchronization receives completion callbacks from the coordinator.
type Synchronization interface {
	BeforeCompletion(ctx context.Context)
	AfterCompletion(ctx context.Context, status Status)
}

// ManagerFunc adapts a function to a Manager.
type ManagerFunc func(ctx context.Context) (Transaction, error)

func (f ManagerFunc) Transaction(ctx context.Context) (Transaction, error) {
	return f(ctx)
}

// NoTransaction is a Manager that never reports an ambient transaction. It
// suits tools and tests that use managed connections outside a coordinator.
var NoTransaction Manager = ManagerFunc(func(context.Context) (Transaction, error) {
	return nil, nil
})
