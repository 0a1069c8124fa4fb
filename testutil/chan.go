package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Receive returns the next value sent on ch, failing the test if ctx is done
// first.
func Receive[T any](t *testing.T, ctx context.Context, ch <-chan T) T {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-ctx.Done():
		require.FailNow(t, "channel did not receive before the context was done")
	}
	return *new(T)
}

// ReceiveN collects n values from ch, failing the test if ctx is done first.
func ReceiveN[T any](t *testing.T, ctx context.Context, ch <-chan T, n int) []T {
	t.Helper()
	got := make([]T, 0, n)
	for range n {
		got = append(got, Receive(t, ctx, ch))
	}
	return got
}
