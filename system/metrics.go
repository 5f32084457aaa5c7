package system

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/worker"
)

// MetricProducer is polled for gauges while the system runs.
type MetricProducer interface {
	// MetricName prefixes every gauge of the producer. Dashes become underscores.
	MetricName() string
	Gauges(context.Context) map[string]float64
}

var metricsInterval = 10 * time.Second

// metricsReporter returns a func for errgroup.Go that publishes the gauges of every
// producer each interval until ctx is done.
func metricsReporter(ctx context.Context, producers []MetricProducer) func() error {
	return func() error {
		worker.Run(ctx, worker.Config{
			Name:          "system-gauges",
			MaxWorkTime:   time.Second,
			NoWorkBackOff: backoff.NewConstantBackOff(metricsInterval),
			WorkFunc: func(ctx context.Context) error {
				mp := o11y.FromContext(ctx).MetricsProvider()
				for _, p := range producers {
					traceMetric(ctx, mp, p)
				}
				return worker.ErrShouldBackoff
			},
		})
		return nil
	}
}

func traceMetric(ctx context.Context, mp o11y.MetricsProvider, p MetricProducer) {
	prefix := "gauge." + strings.ReplaceAll(p.MetricName(), "-", "_") + "."
	for name, v := range p.Gauges(ctx) {
		_ = mp.Gauge(prefix+name, v, []string{}, 1)
	}
}
