package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds every test context.
const DefaultTimeout = 10 * time.Second

type ContextOption func(opts *contextOptions)

func WithTimeout(timeout time.Duration) ContextOption {
	return func(opts *contextOptions) {
		opts.timeout = timeout
	}
}

type contextOptions struct {
	timeout time.Duration
}

// Context returns a context cancelled when the test ends or its timeout
// expires.
func Context(t *testing.T, opts ...ContextOption) context.Context {
	t.Helper()

	options := contextOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}
	if options.timeout <= 0 {
		t.Fatalf("testutil.Context: timeout must be > 0")
	}

	ctx, cancel := context.WithTimeout(t.Context(), options.timeout)
	t.Cleanup(cancel)
	return ctx
}
