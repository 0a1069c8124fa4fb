package txn

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		name   string
		under  bool
	}{
		{StatusActive, "active", true},
		{StatusMarkedRollback, "marked-rollback", true},
		{StatusPrepared, "prepared", false},
		{StatusCommitted, "committed", false},
		{StatusRolledBack, "rolled-back", false},
		{StatusUnknown, "unknown", false},
		{StatusNoTransaction, "no-transaction", false},
		{StatusPreparing, "preparing", false},
		{StatusCommitting, "committing", false},
		{StatusRollingBack, "rolling-back", false},
		{Status(42), "status(42)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.under, tt.status.UnderTransaction())
		})
	}
}

func TestXid(t *testing.T) {
	xid := Xid{FormatID: 1, GlobalID: []byte("tx"), BranchQualifier: []byte{0}}

	assert.True(t, xid.Equal(Xid{FormatID: 1, GlobalID: []byte("tx"), BranchQualifier: []byte{0}}))
	assert.False(t, xid.Equal(Xid{FormatID: 1, GlobalID: []byte("tx"), BranchQualifier: []byte{1}}))
	assert.False(t, xid.IsZero())
	assert.True(t, Xid{}.IsZero())
	assert.Equal(t, "1:7478:00", xid.String())
}

func TestXAError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewXAError(ErrRMErr, cause, "commit branch %d", 2)

	assert.Equal(t, "XAER_RMERR: commit branch 2: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "XA(99)", XACode(99).String())

	var xaErr *XAError
	require.ErrorAs(t, error(err), &xaErr)
	assert.Equal(t, ErrRMErr, xaErr.Code)
}

func TestNoTransaction(t *testing.T) {
	tx, err := NoTransaction.Transaction(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tx)
}

type completer struct {
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
}

func (c *completer) Commit(context.Context) error {
	c.commits++
	return c.commitErr
}

func (c *completer) Rollback(context.Context) error {
	c.rollbacks++
	return c.rollbackErr
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	fnErr := errors.New("fn failed")

	t.Run("commits on success", func(t *testing.T) {
		c := &completer{}
		require.NoError(t, Do(ctx, c, func(context.Context) error { return nil }))
		assert.Equal(t, 1, c.commits)
		assert.Equal(t, 0, c.rollbacks)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		c := &completer{}
		err := Do(ctx, c, func(context.Context) error { return fnErr })
		assert.ErrorIs(t, err, fnErr)
		assert.Equal(t, 0, c.commits)
		assert.Equal(t, 1, c.rollbacks)
	})

	t.Run("joins rollback error", func(t *testing.T) {
		rbErr := errors.New("rollback failed")
		c := &completer{rollbackErr: rbErr}
		err := Do(ctx, c, func(context.Context) error { return fnErr })
		assert.ErrorIs(t, err, fnErr)
		assert.ErrorIs(t, err, rbErr)
	})

	t.Run("wraps commit error", func(t *testing.T) {
		cErr := errors.New("commit failed")
		c := &completer{commitErr: cErr}
		err := Do(ctx, c, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, cErr)
	})

	t.Run("rolls back when fn exits the goroutine", func(t *testing.T) {
		c := &completer{}
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = Do(ctx, c, func(context.Context) error {
				runtime.Goexit()
				return nil
			})
		}()
		<-done
		assert.Equal(t, 0, c.commits)
		assert.Equal(t, 1, c.rollbacks)
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		c := &completer{}
		assert.PanicsWithValue(t, "boom", func() {
			_ = Do(ctx, c, func(context.Context) error { panic("boom") })
		})
		assert.Equal(t, 1, c.rollbacks)
	})
}
