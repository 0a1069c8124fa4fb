package txn

import "strconv"

// Status is the state of a transaction as reported by the coordinator. The
// numeric values are the JTA status codes.
type Status int

const (
	StatusActive Status = iota
	StatusMarkedRollback
	StatusPrepared
	StatusCommitted
	StatusRolledBack
	StatusUnknown
	StatusNoTransaction
	StatusPreparing
	StatusCommitting
	StatusRollingBack
)

var statusNames = [...]string{
	StatusActive:         "active",
	StatusMarkedRollback: "marked-rollback",
	StatusPrepared:       "prepared",
	StatusCommitted:      "committed",
	StatusRolledBack:     "rolled-back",
	StatusUnknown:        "unknown",
	StatusNoTransaction:  "no-transaction",
	StatusPreparing:      "preparing",
	StatusCommitting:     "committing",
	StatusRollingBack:    "rolling-back",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// UnderTransaction reports whether work may still be done on behalf of a
// transaction in this status: it is active or marked for rollback.
func (s Status) UnderTransaction() bool {
	return s == StatusActive || s == StatusMarkedRollback
}
