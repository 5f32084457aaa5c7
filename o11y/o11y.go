// Package o11y is the tracing and metrics API used across pgscope.
//
// A Provider travels in the context. Code starts spans from the context, and every
// span that ends becomes one structured log event, optionally carrying metrics:
//
//	ctx, span := o11y.StartSpan(ctx, "db: session.commit")
//	defer o11y.End(span, &err)
//
// With no Provider in the context every call is a no-op.
package o11y

import (
	"context"
	"net/http"
)

type Provider interface {
	// AddGlobalField adds a field to every span the provider sends, e.g. service or version.
	AddGlobalField(key string, val interface{})

	// StartSpan starts a child of the span in ctx, or a new trace if there is none.
	// The name should be short and say what the work is, e.g. "db: notes.query_get_note_by_id".
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan returns the span in ctx, or nil.
	GetSpan(ctx context.Context) Span

	// AddField adds an "app." prefixed field to the span in ctx.
	AddField(ctx context.Context, key string, val interface{})

	// AddFieldToTrace adds a field to the root span, and so to every span of the trace.
	AddFieldToTrace(ctx context.Context, key string, val interface{})

	// Log sends a zero duration span.
	Log(ctx context.Context, name string, fields ...Pair)

	// Close flushes anything buffered.
	Close(ctx context.Context)

	MetricsProvider() MetricsProvider

	Helpers() Helpers
}

type Span interface {
	// AddField adds an "app." prefixed field.
	AddField(key string, val interface{})

	// AddRawField adds a field as named. Library code uses it for fields such as
	// result, db.system or http.status_code.
	AddRawField(key string, val interface{})

	// RecordMetric emits metric from this span's fields when it ends.
	RecordMetric(metric Metric)

	// End sends the span. It must not be used afterwards.
	End()
}

// PropagationContext carries a trace across a process boundary.
type PropagationContext struct {
	// Parent is the serialised parent of the trace.
	Parent string
	// Headers holds the propagation headers of an incoming request.
	Headers http.Header
}

type Helpers interface {
	// ExtractPropagation serialises the trace in ctx for an outgoing call.
	ExtractPropagation(ctx context.Context) PropagationContext
	// InjectPropagation continues the trace described by p, returning its root span.
	InjectPropagation(ctx context.Context, p PropagationContext) (context.Context, Span)
}

type providerKey struct{}

// WithProvider returns a copy of ctx carrying p.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the Provider in ctx, or a no-op Provider.
func FromContext(ctx context.Context) Provider {
	if p, ok := ctx.Value(providerKey{}).(Provider); ok {
		return p
	}
	return defaultProvider
}

func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

func AddField(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddField(ctx, key, val)
}

func AddFieldToTrace(ctx context.Context, key string, val interface{}) {
	FromContext(ctx).AddFieldToTrace(ctx, key, val)
}

// Log sends a zero duration span named name.
func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError sends a zero duration span named name, with err recorded as its result.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	End(span, &err)
}

// Pair is a field passed to Log.
type Pair struct {
	Key   string
	Value interface{}
}

func Field(key string, value interface{}) Pair {
	return Pair{Key: key, Value: value}
}
