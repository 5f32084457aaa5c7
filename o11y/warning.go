package o11y

import (
	"errors"
)

var errWarning = errors.New("warning")

// NewWarning returns an error that IsWarning reports as a warning. Spans ending with a
// warning are still successes. Each call returns a distinct error.
func NewWarning(msg string) error {
	return &warning{msg: msg}
}

type warning struct {
	msg string
}

func (w *warning) Error() string {
	return w.msg
}

func (w *warning) Is(target error) bool {
	return target == errWarning
}

// IsWarning reports whether any error in err's chain is a warning.
func IsWarning(err error) bool {
	return errors.Is(err, errWarning)
}

// DontErrorTrace reports whether err should not mark a trace as failed: a warning, or a
// cancelled or expired context.
func DontErrorTrace(err error) bool {
	return IsWarning(err) || isCancellation(err)
}
