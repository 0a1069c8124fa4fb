package conn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpTransactionBoundary(t *testing.T) {
	boundary := map[Op]bool{
		OpSetAutoCommit: true,
		OpCommit:        true,
		OpRollback:      true,
		OpSetSavepoint:  true,
		OpSetReadOnly:   true,
	}
	for op := OpExec; op <= OpClose; op++ {
		t.Run(op.String(), func(t *testing.T) {
			assert.Equal(t, boundary[op], op.TransactionBoundary())
		})
	}
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "setAutoCommit", OpSetAutoCommit.String())
	assert.Equal(t, "op(99)", Op(99).String())
}

func TestErrRow(t *testing.T) {
	want := errors.New("boom")
	var v int
	assert.Same(t, want, ErrRow(want).Scan(&v))
}
