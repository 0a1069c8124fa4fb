package errtag

import "github.com/jackc/pgerrcode"

// Coders map a tag to a SQLSTATE code and a default message.

type CodeInternal struct{}

func (CodeInternal) Code() string { return pgerrcode.InternalError }
func (CodeInternal) Text() string { return "internal error" }

type CodeInvalidParameter struct{}

func (CodeInvalidParameter) Code() string { return pgerrcode.InvalidParameterValue }
func (CodeInvalidParameter) Text() string { return "invalid parameter value" }

type CodeConnectionFailure struct{}

func (CodeConnectionFailure) Code() string { return pgerrcode.ConnectionFailure }
func (CodeConnectionFailure) Text() string { return "connection failure" }

type CodeActiveTransaction struct{}

func (CodeActiveTransaction) Code() string { return pgerrcode.ActiveSQLTransaction }
func (CodeActiveTransaction) Text() string { return "connection in use by another transaction" }

type CodeInvalidTransactionTermination struct{}

func (CodeInvalidTransactionTermination) Code() string {
	return pgerrcode.InvalidTransactionTermination
}
func (CodeInvalidTransactionTermination) Text() string { return "invalid transaction termination" }

type CodeTransactionResolutionUnknown struct{}

func (CodeTransactionResolutionUnknown) Code() string {
	return pgerrcode.TransactionResolutionUnknown
}
func (CodeTransactionResolutionUnknown) Text() string { return "transaction resolution unknown" }

type CodeLockNotAvailable struct{}

func (CodeLockNotAvailable) Code() string { return pgerrcode.LockNotAvailable }
func (CodeLockNotAvailable) Text() string { return "transaction timed out" }
