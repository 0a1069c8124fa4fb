package txtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joshjon/txconn/conn"
)

// ErrClosed is returned by Conn operations after Close.
var ErrClosed = errors.New("txtest: connection closed")

// Conn is a recording conn.Conn. Query and QueryRow yield a single row
// holding the connection name so tests can tell which connection served a
// call.
type Conn struct {
	name string

	mu         sync.Mutex
	calls      []conn.Op
	errs       map[conn.Op]error
	autoCommit bool
	readOnly   bool
	closed     bool
	closes     int
	savepoints []string
}

var _ conn.Conn = (*Conn)(nil)

func NewConn(name string) *Conn {
	return &Conn{
		name:       name,
		errs:       make(map[conn.Op]error),
		autoCommit: true,
	}
}

func (c *Conn) Name() string {
	return c.name
}

// FailOn makes op return err.
func (c *Conn) FailOn(op conn.Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[op] = err
}

// Calls returns every recorded operation in call order.
func (c *Conn) Calls() []conn.Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]conn.Op(nil), c.calls...)
}

// Called returns how many times op was invoked.
func (c *Conn) Called(op conn.Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == op {
			n++
		}
	}
	return n
}

// CloseCount returns how many times Close physically closed the connection.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Savepoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.savepoints...)
}

func (c *Conn) record(op conn.Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op)
	if err := c.errs[op]; err != nil {
		return err
	}
	if c.closed && op != conn.OpClose && op != conn.OpIsClosed {
		return ErrClosed
	}
	return nil
}

func (c *Conn) Exec(_ context.Context, _ string, _ ...any) (conn.Result, error) {
	if err := c.record(conn.OpExec); err != nil {
		return nil, err
	}
	return result(1), nil
}

func (c *Conn) Query(_ context.Context, _ string, _ ...any) (conn.Rows, error) {
	if err := c.record(conn.OpQuery); err != nil {
		return nil, err
	}
	return &rows{values: []string{c.name}, pos: -1}, nil
}

func (c *Conn) QueryRow(_ context.Context, _ string, _ ...any) conn.Row {
	if err := c.record(conn.OpQueryRow); err != nil {
		return conn.ErrRow(err)
	}
	return row(c.name)
}

func (c *Conn) Ping(context.Context) error {
	return c.record(conn.OpPing)
}

func (c *Conn) AutoCommit(context.Context) (bool, error) {
	if err := c.record(conn.OpAutoCommit); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit, nil
}

func (c *Conn) SetAutoCommit(_ context.Context, autoCommit bool) error {
	if err := c.record(conn.OpSetAutoCommit); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoCommit = autoCommit
	return nil
}

func (c *Conn) Commit(context.Context) error {
	return c.record(conn.OpCommit)
}

func (c *Conn) Rollback(context.Context) error {
	return c.record(conn.OpRollback)
}

func (c *Conn) SetSavepoint(_ context.Context, name string) error {
	if err := c.record(conn.OpSetSavepoint); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.savepoints = append(c.savepoints, name)
	return nil
}

func (c *Conn) IsReadOnly(context.Context) (bool, error) {
	if err := c.record(conn.OpIsReadOnly); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly, nil
}

func (c *Conn) SetReadOnly(_ context.Context, readOnly bool) error {
	if err := c.record(conn.OpSetReadOnly); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOnly = readOnly
	return nil
}

func (c *Conn) IsClosed(context.Context) (bool, error) {
	if err := c.record(conn.OpIsClosed); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, nil
}

func (c *Conn) Close(context.Context) error {
	if err := c.record(conn.OpClose); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closes++
	}
	return nil
}

// Pool hands out fresh Conns named conn-1, conn-2, ...
type Pool struct {
	mu    sync.Mutex
	conns []*Conn
}

func (p *Pool) Acquire(context.Context) (conn.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := NewConn(fmt.Sprintf("conn-%d", len(p.conns)+1))
	p.conns = append(p.conns, c)
	return c, nil
}

// Conns returns every Conn handed out so far.
func (p *Pool) Conns() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Conn(nil), p.conns...)
}

type result int64

func (r result) RowsAffected() (int64, error) { return int64(r), nil }

type row string

func (r row) Scan(dest ...any) error {
	return scanName(string(r), dest)
}

type rows struct {
	values []string
	pos    int
	closed bool
}

func (r *rows) Next() bool {
	if r.closed || r.pos+1 >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.values) {
		return errors.New("txtest: scan called without a current row")
	}
	return scanName(r.values[r.pos], dest)
}

func (r *rows) Err() error { return nil }

func (r *rows) Close() error {
	r.closed = true
	return nil
}

func scanName(name string, dest []any) error {
	if len(dest) != 1 {
		return fmt.Errorf("txtest: expected 1 destination, got %d", len(dest))
	}
	s, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("txtest: unsupported destination %T", dest[0])
	}
	*s = name
	return nil
}
