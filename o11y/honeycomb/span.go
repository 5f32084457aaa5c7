package honeycomb

import (
	"fmt"
	"strings"

	"github.com/honeycombio/beeline-go/trace"

	"github.com/pgscope/pgscope/o11y"
)

// WrapSpan adapts a beeline span, it returns nil for a nil span.
func WrapSpan(s *trace.Span) o11y.Span {
	if s == nil {
		return nil
	}
	return &span{span: s}
}

type span struct {
	span    *trace.Span
	metrics []o11y.Metric
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	mustValidateKey(key)
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.span.AddField(key, val)
}

func (s *span) RecordMetric(m o11y.Metric) {
	s.metrics = append(s.metrics, m)
	s.span.AddField(metricsField, s.metrics)
}

func (s *span) End() {
	s.span.Send()
}

// mustValidateKey panics on keys with a '-', which honeycomb and statsd tags mangle.
func mustValidateKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
