package managed

import (
	"context"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/txn"
)

// closingSync closes the enlisted connection once its transaction completes
// and drops the transaction's registry entry. txID is the transaction the
// listener was registered with, not the one ambient at completion.
type closingSync struct {
	conn     conn.Conn
	txID     string
	registry *Registry
	logger   log.Logger
}

var _ txn.Synchronization = (*closingSync)(nil)

func (s *closingSync) BeforeCompletion(context.Context) {}

func (s *closingSync) AfterCompletion(ctx context.Context, status txn.Status) {
	s.logger.Debug("transaction completed, closing enlisted connection", "tx_id", s.txID, "status", status.String())
	closeQuietly(ctx, s.conn, s.logger)
	s.registry.Remove(s.txID)
}

// closeQuietly closes c unless it is already closed. Failures are logged at
// warn level and dropped.
func closeQuietly(ctx context.Context, c conn.Conn, logger log.Logger) {
	closed, err := c.IsClosed(ctx)
	if err == nil && closed {
		return
	}
	if err == nil {
		err = c.Close(ctx)
	}
	if err != nil {
		logger.Warn("close connection", "error", err)
	}
}
