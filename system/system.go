package system

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/termination"
)

// HealthChecker is anything with readiness or liveness checks to expose on the admin server.
// Either func may be nil.
type HealthChecker interface {
	HealthChecks() (name string, ready, live func(ctx context.Context) error)
}

type named struct {
	name string
	fn   func(ctx context.Context) error
}

// System collects the long-running parts of a process and what it takes to shut them down.
// Register everything before calling Run.
type System struct {
	group *errgroup.Group
	ctx   context.Context

	services     []named
	cleanups     []named
	healthChecks []HealthChecker
	producers    []MetricProducer
}

func New(ctx context.Context) *System {
	group, ctx := errgroup.WithContext(ctx)
	return &System{
		group: group,
		ctx:   ctx,
	}
}

var terminationTestHook = termination.Handle

// Run starts every service and blocks until one of them fails or the process is
// told to terminate, in which case shutdown is held off for delay. Any service
// returning stops the rest.
func (s *System) Run(delay time.Duration) (err error) {
	ctx, span := o11y.StartSpan(s.ctx, "system: run")
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("system.run", "result"))
	span.AddField("services", len(s.services))

	s.group.Go(func() error {
		return terminationTestHook(ctx, delay)
	})
	for _, svc := range s.services {
		svc := svc
		s.group.Go(func() (err error) {
			ctx, span := o11y.StartSpan(ctx, "system: service "+svc.name)
			defer o11y.End(span, &err)
			return svc.fn(ctx)
		})
	}
	if len(s.producers) > 0 {
		s.group.Go(metricsReporter(ctx, s.producers))
	}

	return s.group.Wait()
}

// AddService registers run to be started by Run. It must block until ctx is done.
func (s *System) AddService(name string, run func(ctx context.Context) error) {
	s.services = append(s.services, named{name: name, fn: run})
}

// Add registers the health checks and gauges c provides, whichever it implements.
func (s *System) Add(c interface{}) {
	if h, ok := c.(HealthChecker); ok {
		s.AddHealthCheck(h)
	}
	if m, ok := c.(MetricProducer); ok {
		s.AddMetrics(m)
	}
}

func (s *System) AddHealthCheck(h HealthChecker) {
	s.healthChecks = append(s.healthChecks, h)
}

func (s *System) AddMetrics(m MetricProducer) {
	s.producers = append(s.producers, m)
}

// AddCleanup registers c to run on Cleanup. Cleanups run in reverse order of registration,
// so a pool added before the servers using it is closed after them.
func (s *System) AddCleanup(name string, c func(ctx context.Context) error) {
	s.cleanups = append(s.cleanups, named{name: name, fn: c})
}

func (s *System) HealthChecks() []HealthChecker {
	return s.healthChecks
}

// Cleanup runs every cleanup, even after one fails. Failures are logged.
func (s *System) Cleanup(ctx context.Context) {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		c := s.cleanups[i]
		func() {
			ctx, span := o11y.StartSpan(ctx, "system: cleanup "+c.name)
			defer span.End()
			if err := c.fn(ctx); err != nil {
				o11y.AddResultToSpan(span, err)
				o11y.Log(ctx, "system: cleanup error",
					o11y.Field("cleanup", c.name),
					o11y.Field("error", err),
				)
			}
		}()
	}
}
