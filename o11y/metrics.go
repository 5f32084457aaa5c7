package o11y

import (
	"io"
)

type MetricType string

const (
	MetricTimer MetricType = "timer"
	MetricGauge MetricType = "gauge"
	MetricCount MetricType = "count"
)

// Metric is emitted when the span that recorded it ends. Its value and tags are read
// from the span's fields.
type Metric struct {
	Type MetricType
	Name string
	// Field holds the value. Counts without a Field count one.
	Field string
	// TagFields name the span fields to tag the metric with.
	TagFields []string
}

// Timing times the span, tagged with the given fields.
func Timing(name string, tagFields ...string) Metric {
	return Metric{Type: MetricTimer, Name: name, Field: "duration_ms", TagFields: tagFields}
}

// Incr counts the span.
func Incr(name string, tagFields ...string) Metric {
	return Metric{Type: MetricCount, Name: name, TagFields: tagFields}
}

// Gauge reports the span field valueField.
func Gauge(name, valueField string, tagFields ...string) Metric {
	return Metric{Type: MetricGauge, Name: name, Field: valueField, TagFields: tagFields}
}

// MetricsProvider sends metrics directly, without a span. The statsd client satisfies it.
type MetricsProvider interface {
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
}

type ClosableMetricsProvider interface {
	MetricsProvider
	io.Closer
}
