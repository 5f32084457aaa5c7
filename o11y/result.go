package o11y

import (
	"context"
	"errors"
)

// End records the result of err on span and sends it. Pass the address of a named
// return so End can be deferred straight after StartSpan:
//
//	defer o11y.End(span, &err)
func End(span Span, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	AddResultToSpan(span, e)
	span.End()
}

// AddResultToSpan sets the result field of span from err. Warnings keep the result a
// success, cancellations are "canceled", and anything else is an "error".
func AddResultToSpan(span Span, err error) {
	result := "success"
	switch {
	case err == nil:
	case IsWarning(err):
		span.AddRawField("warning", err.Error())
	case isCancellation(err):
		result = "canceled"
		span.AddRawField("warning", err.Error())
	default:
		result = "error"
		span.AddRawField("error", err.Error())
	}
	span.AddRawField("result", result)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
