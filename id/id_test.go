package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New[ProxyID]()
	assert.False(t, p.IsZero())
	assert.True(t, strings.HasPrefix(p.String(), "conn_"))

	tx1, tx2 := New[TxID](), New[TxID]()
	assert.True(t, strings.HasPrefix(tx1.String(), "tx_"))
	assert.NotEqual(t, tx1, tx2)
}

func TestParse(t *testing.T) {
	want := New[TxID]()

	got, err := Parse[TxID](want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Parse[TxID](New[ProxyID]().String())
	assert.Error(t, err)

	assert.Panics(t, func() { MustParse[TxID]("invalid") })
}
