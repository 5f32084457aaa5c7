package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pgscope/pgscope/o11y"
)

// HealthCheck exposes a pool as a readiness check and as a producer of pool gauges.
type HealthCheck struct {
	Name string
	DB   *sqlx.DB
}

// HealthChecks has no liveness check: an unreachable database makes the service
// unready, it does not mean the process should be restarted.
func (h *HealthCheck) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return h.Name, h.ready, nil
}

// ready pings through the pool, so pre-ping and recycling apply, then asks the
// server for its version.
func (h *HealthCheck) ready(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "db: health check")
	defer o11y.End(span, &err)
	span.AddField("name", h.Name)

	if err := h.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var version string
	if err := h.DB.QueryRowxContext(ctx, `SELECT version()`).Scan(&version); err != nil {
		return fmt.Errorf("database version query failed: %w", err)
	}
	span.AddField("server_version", version)
	return nil
}

func (h *HealthCheck) MetricName() string {
	return h.Name
}

func (h *HealthCheck) Gauges(context.Context) map[string]float64 {
	s := h.DB.Stats()
	return map[string]float64{
		"open":                 float64(s.OpenConnections),
		"max_open":             float64(s.MaxOpenConnections),
		"in_use":               float64(s.InUse),
		"idle":                 float64(s.Idle),
		"wait_count":           float64(s.WaitCount),
		"wait_ms":              float64(s.WaitDuration.Milliseconds()),
		"max_idle_closed":      float64(s.MaxIdleClosed),
		"max_idle_time_closed": float64(s.MaxIdleTimeClosed),
		"max_lifetime_closed":  float64(s.MaxLifetimeClosed),
	}
}
