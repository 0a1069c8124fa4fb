// Package conn defines the capability set shared by physical connection
// adapters and managed connection proxies.
package conn

import "context"

// Result summarizes an executed statement.
type Result interface {
	RowsAffected() (int64, error)
}

// Rows is a result set cursor. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Row is a single row result. Errors are deferred until Scan.
type Row interface {
	Scan(dest ...any) error
}

// Conn is a database connection handle.
//
// Auto-commit follows the usual driver convention: a connection starts in
// auto-commit mode, disabling it opens an implicit local transaction that
// Commit and Rollback terminate.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Ping(ctx context.Context) error

	AutoCommit(ctx context.Context) (bool, error)
	SetAutoCommit(ctx context.Context, autoCommit bool) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	SetSavepoint(ctx context.Context, name string) error

	IsReadOnly(ctx context.Context) (bool, error)
	SetReadOnly(ctx context.Context, readOnly bool) error

	IsClosed(ctx context.Context) (bool, error)
	Close(ctx context.Context) error
}

// ErrRow returns a Row whose Scan reports err.
func ErrRow(err error) Row {
	return errRow{err: err}
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }
