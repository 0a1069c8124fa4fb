package managed

import (
	"fmt"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/errtag"
)

// CrossTransactionError is returned when a connection enlisted in one active
// transaction is used under a different one.
type CrossTransactionError struct {
	errtag.ErrorTag[errtag.CodeActiveTransaction]
}

// ForbiddenCallError is returned when a transaction boundary operation is
// called on a connection whose transaction is owned by the coordinator.
type ForbiddenCallError struct {
	errtag.ErrorTag[errtag.CodeInvalidTransactionTermination]
}

// EnlistmentFailedError is returned when the coordinator refuses to enlist
// the connection. It unwraps to the coordinator's error.
type EnlistmentFailedError struct {
	errtag.ErrorTag[errtag.CodeTransactionResolutionUnknown]
}

func crossTransactionError(enlisted, current string) error {
	return errtag.NewTagged[CrossTransactionError](
		fmt.Sprintf("connection can not be used while enlisted in another transaction (enlisted in %s, called under %s)", enlisted, current),
		errtag.WithDetails("enlisted_tx="+enlisted, "current_tx="+current),
	)
}

func forbiddenCallError(op conn.Op) error {
	return errtag.NewTagged[ForbiddenCallError](
		fmt.Sprintf("can't call %s when the connection is enlisted in a managed transaction", op),
	)
}

func enlistmentFailedError(txID string, cause error) error {
	return errtag.Tag[EnlistmentFailedError](
		fmt.Errorf("unable to enlist connection in transaction %s: %w", txID, cause),
	)
}
