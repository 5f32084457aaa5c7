// Package termination turns the process being asked to stop into an error that ends a System run.
package termination

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pgscope/pgscope/o11y"
)

var ErrTerminated = errors.New("terminated")

// Handle blocks until the process receives SIGINT or SIGTERM, and then waits delay before
// returning ErrTerminated. The delay gives load balancers time to stop sending new requests
// while in-flight ones finish with their sessions. Handle returns nil if ctx is done first.
func Handle(ctx context.Context, delay time.Duration) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		o11y.Log(ctx, "termination: signal received",
			o11y.Field("signal", sig.String()),
			o11y.Field("delay", delay),
		)
	case <-ctx.Done():
		return nil
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return ErrTerminated
}
