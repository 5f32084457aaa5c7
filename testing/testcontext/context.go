// Package testcontext provides a context for tests that carries a working o11y provider,
// so code under test logs its spans to the test output.
package testcontext

import (
	"context"
	"os"

	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/o11y/honeycomb"
)

// ctx is a global singleton, initialised at package time to avoid racy initiation of
// the beeline global state.
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	format := "text"
	if os.Getenv("TEST_O11Y_JSON") != "" {
		format = "json"
	}
	p := honeycomb.New(honeycomb.Config{
		Format:      format,
		ServiceName: "test-service",
	})
	return o11y.WithProvider(context.Background(), p)
}
