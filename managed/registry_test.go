package managed

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/txtest"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b := txtest.NewConn("a"), txtest.NewConn("b")

	_, ok := r.Get("tx_1")
	assert.False(t, ok)

	got, loaded := r.PutIfAbsent("tx_1", a)
	assert.False(t, loaded)
	assert.Same(t, a, got)

	got, loaded = r.PutIfAbsent("tx_1", b)
	assert.True(t, loaded)
	assert.Same(t, a, got, "first connection wins")

	_, loaded = r.PutIfAbsent("tx_2", b)
	assert.False(t, loaded)
	assert.Equal(t, 2, r.Len())

	r.Remove("tx_1")
	r.Remove("tx_1")
	_, ok = r.Get("tx_1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentPutIfAbsent(t *testing.T) {
	r := NewRegistry()

	const txs, contenders = 8, 32
	winners := make([]chan conn.Conn, txs)
	for i := range winners {
		winners[i] = make(chan conn.Conn, contenders)
	}

	var wg sync.WaitGroup
	for i := 0; i < txs; i++ {
		for j := 0; j < contenders; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c := txtest.NewConn(fmt.Sprintf("%d-%d", i, j))
				if _, loaded := r.PutIfAbsent(fmt.Sprintf("tx_%d", i), c); !loaded {
					winners[i] <- c
				}
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, txs, r.Len())
	for i, ch := range winners {
		require.Len(t, ch, 1, "exactly one winner for tx_%d", i)
		want := <-ch
		got, ok := r.Get(fmt.Sprintf("tx_%d", i))
		require.True(t, ok)
		assert.Same(t, want, got)
	}
}
