// Package recontext derives contexts that keep the parent's values (the o11y provider, the
// current span, the request session) but not its deadline or cancellation. Use them for
// cleanup that has to happen after the request that started it has gone away.
package recontext

import (
	"context"
	"time"
)

// WithNewDeadline returns a derived context that ignores the cancellation and deadline of parent.
// The new deadline is mandatory so cleanup cannot hang forever.
func WithNewDeadline(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(context.WithoutCancel(parent), deadline)
}

// WithNewTimeout returns a derived context that ignores the cancellation and deadline of parent.
// The new timeout is mandatory so cleanup cannot hang forever.
func WithNewTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
