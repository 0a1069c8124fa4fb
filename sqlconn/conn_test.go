package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshjon/txconn/errtag"
	"github.com/joshjon/txconn/sqlitedb"
	"github.com/joshjon/txconn/testutil"
)

func openDB(t *testing.T, ctx context.Context) *sql.DB {
	t.Helper()
	db, err := sqlitedb.Open(ctx,
		sqlitedb.WithDir(t.TempDir()),
		sqlitedb.WithDBName(testutil.RandName()),
		sqlitedb.WithMaxOpenConns(2),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, ctx context.Context, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n))
	return n
}

func TestConn_AutoCommit(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	autoCommit, err := c.AutoCommit(ctx)
	require.NoError(t, err)
	assert.True(t, autoCommit)

	res, err := c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, countItems(t, ctx, db))

	assert.ErrorIs(t, c.Commit(ctx), ErrAutoCommit)
	assert.ErrorIs(t, c.Rollback(ctx), ErrAutoCommit)
	assert.ErrorIs(t, c.SetSavepoint(ctx, "sp"), ErrAutoCommit)
}

func TestConn_ManualCommit(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	require.NoError(t, c.SetAutoCommit(ctx, false))
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)

	var name string
	require.NoError(t, c.QueryRow(ctx, "SELECT name FROM items").Scan(&name))
	assert.Equal(t, "a", name)
	assert.Zero(t, countItems(t, ctx, db), "not visible before commit")

	require.NoError(t, c.Commit(ctx))
	assert.Equal(t, 1, countItems(t, ctx, db))

	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "b")
	require.NoError(t, err)
	require.NoError(t, c.Rollback(ctx))
	assert.Equal(t, 1, countItems(t, ctx, db))
}

func TestConn_EnableAutoCommitCommits(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	require.NoError(t, c.SetAutoCommit(ctx, false))
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)
	require.NoError(t, c.SetAutoCommit(ctx, true))

	assert.Equal(t, 1, countItems(t, ctx, db))
}

func TestConn_Savepoint(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	require.NoError(t, c.SetAutoCommit(ctx, false))
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)
	require.NoError(t, c.SetSavepoint(ctx, "before b"))
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "b")
	require.NoError(t, err)
	_, err = c.Exec(ctx, `ROLLBACK TO "before b"`)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	assert.Equal(t, 1, countItems(t, ctx, db))
}

func TestConn_Query(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	for _, name := range []string{"a", "b"} {
		_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", name)
		require.NoError(t, err)
	}

	rows, err := c.Query(ctx, "SELECT name FROM items ORDER BY id")
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		got = append(got, name)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = c.Query(ctx, "SELECT nope FROM items")
	assert.Error(t, err)
}

func TestConn_ReadOnlyFlag(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	require.NoError(t, c.SetReadOnly(ctx, true))
	readOnly, err := c.IsReadOnly(ctx)
	require.NoError(t, err)
	assert.True(t, readOnly)
	require.NoError(t, c.SetReadOnly(ctx, false))

	require.NoError(t, c.SetAutoCommit(ctx, false))
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)
	assert.ErrorIs(t, c.SetReadOnly(ctx, true), ErrInTransaction)
}

func TestConn_Close(t *testing.T) {
	ctx := testutil.Context(t)
	db := openDB(t, ctx)

	c, err := Acquire(ctx, db)
	require.NoError(t, err)

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.SetAutoCommit(ctx, false))
	_, err = c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	closed, err := c.IsClosed(ctx)
	require.NoError(t, err)
	assert.True(t, closed)

	assert.Zero(t, countItems(t, ctx, db), "open transaction rolled back")
	_, err = c.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Ping(ctx), ErrClosed)
	var n int
	assert.ErrorIs(t, c.QueryRow(ctx, "SELECT 1").Scan(&n), ErrClosed)
}

func TestTagTimeout(t *testing.T) {
	assert.NoError(t, tagTimeout(nil))

	err := tagTimeout(fmt.Errorf("commit: %w", context.DeadlineExceeded))
	assert.True(t, errtag.HasTag[errtag.TransactionTimeout](err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other := errors.New("constraint failed")
	assert.Same(t, other, tagTimeout(other))
}
