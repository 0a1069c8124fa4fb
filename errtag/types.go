package errtag

type Internal struct{ ErrorTag[CodeInternal] }

type InvalidArgument struct{ ErrorTag[CodeInvalidParameter] }

type Unavailable struct{ ErrorTag[CodeConnectionFailure] }

// TransactionTimeout marks a statement or commit that gave up waiting on a
// deadline or a lock.
type TransactionTimeout struct{ ErrorTag[CodeLockNotAvailable] }
