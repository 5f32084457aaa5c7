// Package honeycomb is the o11y provider built on the honeycomb beeline. Spans are written
// to a local writer as json or text, and optionally shipped to honeycomb. Metrics
// recorded on spans go to the configured statsd client.
package honeycomb

import (
	"context"
	"net/http"

	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/client"
	"github.com/honeycombio/beeline-go/propagation"
	"github.com/honeycombio/beeline-go/trace"
	"github.com/honeycombio/dynsampler-go"
	"github.com/honeycombio/libhoney-go"

	"github.com/pgscope/pgscope/o11y"
)

type honeycomb struct {
	metrics o11y.ClosableMetricsProvider
}

// New initialises the beeline, which is process global, and returns a provider for it.
func New(conf Config) o11y.Provider {
	// beeline ignores this error in its own constructor too
	lc, _ := libhoney.NewClient(libhoney.ClientConfig{
		APIKey:       conf.Key,
		Dataset:      conf.Dataset,
		APIHost:      conf.Host,
		Transmission: conf.sender(),
	})

	hook := metricsHook(conf.Metrics)
	bc := beeline.Config{
		Client:      lc,
		Debug:       conf.Debug,
		WriteKey:    conf.Key,
		ServiceName: conf.ServiceName,
		PresendHook: hook,
	}

	if conf.SampleTraces {
		rates := conf.SampleRates
		if rates == nil {
			rates = map[string]int{}
		}
		sampler := &TraceSampler{
			KeyFunc: conf.SampleKeyFunc,
			Sampler: &dynsampler.Static{Default: 1, Rates: rates},
		}
		// sampled out spans never reach the presend hook, so metrics are sent here instead
		bc.PresendHook = nil
		bc.SamplerHook = func(fields map[string]interface{}) (bool, int) {
			hook(fields)
			return sampler.Hook(fields)
		}
	}

	beeline.Init(bc)
	return &honeycomb{metrics: conf.Metrics}
}

func (h *honeycomb) AddGlobalField(key string, val interface{}) {
	mustValidateKey(key)
	client.AddField(key, val)
}

func (h *honeycomb) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	var s *trace.Span
	if parent := trace.GetSpanFromContext(ctx); parent != nil {
		ctx, s = parent.CreateAsyncChild(ctx)
	} else {
		ctx, _ = trace.NewTrace(ctx, nil)
		s = trace.GetSpanFromContext(ctx)
	}
	s.AddField("name", name)
	return ctx, WrapSpan(s)
}

func (h *honeycomb) GetSpan(ctx context.Context) o11y.Span {
	return WrapSpan(trace.GetSpanFromContext(ctx))
}

func (h *honeycomb) AddField(ctx context.Context, key string, val interface{}) {
	mustValidateKey(key)
	beeline.AddField(ctx, key, val)
}

func (h *honeycomb) AddFieldToTrace(ctx context.Context, key string, val interface{}) {
	mustValidateKey(key)
	beeline.AddFieldToTrace(ctx, key, val)
}

func (h *honeycomb) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := h.StartSpan(ctx, name)
	for _, f := range fields {
		s.AddField(f.Key, f.Value)
	}
	s.End()
}

func (h *honeycomb) Close(context.Context) {
	beeline.Close()
	if h.metrics != nil {
		_ = h.metrics.Close()
	}
}

func (h *honeycomb) MetricsProvider() o11y.MetricsProvider {
	if h.metrics == nil {
		return nopMetrics{}
	}
	return h.metrics
}

func (h *honeycomb) Helpers() o11y.Helpers {
	return h
}

func (h *honeycomb) ExtractPropagation(ctx context.Context) o11y.PropagationContext {
	s := trace.GetSpanFromContext(ctx)
	if s == nil {
		return o11y.PropagationContext{}
	}
	parent := s.SerializeHeaders()
	return o11y.PropagationContext{
		Parent:  parent,
		Headers: http.Header{propagation.TracePropagationHTTPHeader: []string{parent}},
	}
}

// InjectPropagation prefers the honeycomb header and falls back to w3c traceparent.
func (h *honeycomb) InjectPropagation(ctx context.Context, p o11y.PropagationContext) (context.Context, o11y.Span) {
	var prop *propagation.PropagationContext
	if parent := p.Parent; parent != "" || p.Headers.Get(propagation.TracePropagationHTTPHeader) != "" {
		if parent == "" {
			parent = p.Headers.Get(propagation.TracePropagationHTTPHeader)
		}
		prop, _ = propagation.UnmarshalHoneycombTraceContext(parent)
	} else {
		_, prop, _ = propagation.UnmarshalW3CTraceContext(ctx, map[string]string{
			propagation.TraceparentHeader: p.Headers.Get(propagation.TraceparentHeader),
		})
	}

	ctx, tr := trace.NewTrace(ctx, prop)
	return ctx, WrapSpan(tr.GetRootSpan())
}

type nopMetrics struct{}

func (nopMetrics) TimeInMilliseconds(string, float64, []string, float64) error { return nil }
func (nopMetrics) Gauge(string, float64, []string, float64) error              { return nil }
func (nopMetrics) Count(string, int64, []string, float64) error                { return nil }
