package honeycomb

import (
	"fmt"
	"time"

	"github.com/pgscope/pgscope/o11y"
)

// metricsField is where a span stashes the metrics it recorded until it is sent.
const metricsField = "__pgscope_metrics__"

// metricsHook sends the metrics recorded on a span and removes them from its fields.
// Every span with an error or warning is counted as well.
func metricsHook(mp o11y.MetricsProvider) func(map[string]interface{}) {
	return func(fields map[string]interface{}) {
		metrics, _ := fields[metricsField].([]o11y.Metric)
		delete(fields, metricsField)
		if mp == nil {
			return
		}

		for _, name := range []string{"error", "warning"} {
			if _, ok := fields[name]; ok {
				_ = mp.Count(name, 1, []string{"type:o11y"}, 1)
			}
		}
		for _, m := range metrics {
			send(mp, m, fields)
		}
	}
}

func send(mp o11y.MetricsProvider, m o11y.Metric, fields map[string]interface{}) {
	var tags []string
	for _, name := range m.TagFields {
		if v := field(fields, name); v != nil {
			tags = append(tags, fmt.Sprintf("%s:%v", name, v))
		}
	}

	switch m.Type {
	case o11y.MetricTimer:
		if ms, ok := number(field(fields, m.Field)); ok {
			_ = mp.TimeInMilliseconds(m.Name, ms, tags, 1)
		}
	case o11y.MetricGauge:
		if v, ok := number(field(fields, m.Field)); ok {
			_ = mp.Gauge(m.Name, v, tags, 1)
		}
	case o11y.MetricCount:
		n := int64(1)
		if m.Field != "" {
			v, ok := number(field(fields, m.Field))
			if !ok {
				return
			}
			n = int64(v)
		}
		_ = mp.Count(m.Name, n, tags, 1)
	}
}

// field looks name up as given, then with the "app." prefix AddField uses.
func field(fields map[string]interface{}, name string) interface{} {
	if v, ok := fields[name]; ok {
		return v
	}
	return fields["app."+name]
}

// number converts the numeric span field types to float64. Durations become milliseconds.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case time.Duration:
		return float64(n.Milliseconds()), true
	}
	return 0, false
}
