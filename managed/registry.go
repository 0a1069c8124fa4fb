package managed

import (
	"sync"

	"github.com/joshjon/txconn/conn"
)

// Registry maps a transaction ID to the one physical connection enlisted for
// that transaction. Proxies that share a Registry converge on the same
// connection when they are used under the same transaction, so a Registry
// should be shared only by proxies whose connections reach the same database.
type Registry struct {
	mu    sync.Mutex
	conns map[string]conn.Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]conn.Conn)}
}

// Get returns the connection enlisted for txID.
func (r *Registry) Get(txID string) (conn.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[txID]
	return c, ok
}

// PutIfAbsent registers c for txID unless a connection is already registered.
// It returns the registered connection and whether it was already present.
func (r *Registry) PutIfAbsent(txID string, c conn.Conn) (actual conn.Conn, loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conns[txID]; ok {
		return existing, true
	}
	r.conns[txID] = c
	return c, false
}

func (r *Registry) Remove(txID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, txID)
}

// Len returns the number of transactions with an enlisted connection.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
