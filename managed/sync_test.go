package managed

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/testutil"
	"github.com/joshjon/txconn/txn"
	"github.com/joshjon/txconn/txtest"
)

func TestClosingSync(t *testing.T) {
	ctx := testutil.Context(t)
	r := NewRegistry()
	c := txtest.NewConn("a")
	r.PutIfAbsent("tx_1", c)
	r.PutIfAbsent("tx_2", txtest.NewConn("b"))

	s := &closingSync{conn: c, txID: "tx_1", registry: r, logger: log.Nop()}
	s.BeforeCompletion(ctx)
	assert.False(t, c.Closed())

	s.AfterCompletion(ctx, txn.StatusCommitted)
	assert.Equal(t, 1, c.CloseCount())
	_, ok := r.Get("tx_1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len(), "other transactions untouched")

	// A second listener for the same transaction finds the connection closed.
	s.AfterCompletion(ctx, txn.StatusCommitted)
	assert.Equal(t, 1, c.CloseCount())
}

func TestClosingSync_CloseFailureSwallowed(t *testing.T) {
	ctx := testutil.Context(t)
	var buf bytes.Buffer
	r := NewRegistry()
	c := txtest.NewConn("a")
	c.FailOn(conn.OpClose, errors.New("broken pipe"))
	r.PutIfAbsent("tx_1", c)

	s := &closingSync{
		conn:     c,
		txID:     "tx_1",
		registry: r,
		logger:   log.NewLogger(log.WithWriter(&buf), log.WithLevel(slog.LevelWarn)),
	}
	assert.NotPanics(t, func() { s.AfterCompletion(ctx, txn.StatusRolledBack) })
	assert.Zero(t, r.Len())
	assert.Contains(t, buf.String(), "broken pipe")
}

func TestCloseQuietly_IsClosedFailure(t *testing.T) {
	ctx := testutil.Context(t)
	c := txtest.NewConn("a")
	c.FailOn(conn.OpIsClosed, errors.New("unknown state"))

	closeQuietly(ctx, c, log.Nop())
	assert.Zero(t, c.Called(conn.OpClose))
}
