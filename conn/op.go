package conn

import "strconv"

// Op names a Conn operation.
type Op int

const (
	OpExec Op = iota
	OpQuery
	OpQueryRow
	OpPing
	OpAutoCommit
	OpSetAutoCommit
	OpCommit
	OpRollback
	OpSetSavepoint
	OpIsReadOnly
	OpSetReadOnly
	OpIsClosed
	OpClose
)

var opNames = [...]string{
	OpExec:          "exec",
	OpQuery:         "query",
	OpQueryRow:      "queryRow",
	OpPing:          "ping",
	OpAutoCommit:    "autoCommit",
	OpSetAutoCommit: "setAutoCommit",
	OpCommit:        "commit",
	OpRollback:      "rollback",
	OpSetSavepoint:  "setSavepoint",
	OpIsReadOnly:    "isReadOnly",
	OpSetReadOnly:   "setReadOnly",
	OpIsClosed:      "isClosed",
	OpClose:         "close",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// TransactionBoundary reports whether o starts, ends or reshapes a local
// transaction.
func (o Op) TransactionBoundary() bool {
	switch o {
	case OpSetAutoCommit, OpCommit, OpRollback, OpSetSavepoint, OpSetReadOnly:
		return true
	}
	return false
}
