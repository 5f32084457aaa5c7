package termination

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/pgscope/pgscope/testing/testcontext"
)

func TestHandle_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	cancel()
	assert.NilError(t, Handle(ctx, time.Hour))
}

func TestHandle_Signal(t *testing.T) {
	ctx, cancel := context.WithTimeout(testcontext.Background(), 10*time.Second)
	defer cancel()

	// keeps SIGTERM from killing the test binary before Handle has registered
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	errs := make(chan error, 1)
	go func() {
		errs <- Handle(ctx, 10*time.Millisecond)
	}()

	var got error
	poll.WaitOn(t, func(t poll.LogT) poll.Result {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		select {
		case got = <-errs:
			return poll.Success()
		case <-time.After(20 * time.Millisecond):
			return poll.Continue("waiting for signal handling")
		}
	}, poll.WithTimeout(5*time.Second))
	assert.ErrorIs(t, got, ErrTerminated)
}
