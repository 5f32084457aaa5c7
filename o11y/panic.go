package o11y

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rollbar/rollbar-go"
)

// RollbarProvider is a Provider that also reports panics to rollbar.
type RollbarProvider interface {
	RollBarClient() *rollbar.Client
}

// HandlePanic records the recovered value p on span and returns it as an error. When the
// Provider in ctx is a RollbarProvider the panic is reported there too, against r if
// there is a request in flight.
func HandlePanic(ctx context.Context, span Span, p interface{}, r *http.Request) error {
	err := fmt.Errorf("panic handled: %+v", p)
	span.AddRawField("panic", p)
	span.AddRawField("has_panicked", "true")
	span.AddRawField("stack", string(debug.Stack()))
	span.RecordMetric(Incr("panics", "name"))

	rp, ok := FromContext(ctx).(RollbarProvider)
	if !ok {
		return err
	}
	if r != nil {
		rp.RollBarClient().RequestError(rollbar.CRIT, r, err)
	} else {
		rp.RollBarClient().LogPanic(p, true)
	}
	return err
}
