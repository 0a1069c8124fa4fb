package txn

import (
	"context"
	"errors"
	"fmt"
)

// Completer ends a transaction. Coordinator transactions and connections with
// auto-commit disabled both satisfy it.
type Completer interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Do runs fn and commits tx when it returns nil. When fn returns an error,
// panics or exits the goroutine, tx is rolled back; a panic is raised again
// after the rollback.
func Do(ctx context.Context, tx Completer, fn func(ctx context.Context) error) (err error) {
	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		rbErr := tx.Rollback(ctx)
		if r != nil {
			if rbErr != nil {
				panic(fmt.Errorf("panic: %v; rollback transaction: %w", r, rbErr))
			}
			panic(r)
		}
		if rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}
	finished = true

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
