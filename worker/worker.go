package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pgscope/pgscope/o11y"
)

// ErrShouldBackoff is returned by a WorkFunc that found nothing to do.
var ErrShouldBackoff = errors.New("should back off")

type Config struct {
	// Name tags the span of each iteration.
	Name string
	// NoWorkBackOff paces the loop while WorkFunc finds nothing to do. It is reset as
	// soon as there is work again. Defaults to exponential, from 50ms up to 5s.
	NoWorkBackOff backoff.BackOff
	// MaxWorkTime bounds each call of WorkFunc, it defaults to a minute.
	MaxWorkTime time.Duration
	WorkFunc    func(ctx context.Context) error

	waiter func(ctx context.Context, delay time.Duration)
}

// Run calls WorkFunc in a loop until ctx is done. A call that returns ErrShouldBackoff
// makes the loop wait, any other result runs the next call straight away.
func Run(ctx context.Context, cfg Config) {
	cfg = setDefaults(cfg)
	cfg.NoWorkBackOff.Reset()
	p := o11y.FromContext(ctx)

	for ctx.Err() == nil {
		delay, idle := doWork(p, cfg)
		if !idle {
			cfg.NoWorkBackOff.Reset()
			continue
		}
		cfg.waiter(ctx, delay)
	}
}

func setDefaults(cfg Config) Config {
	if cfg.waiter == nil {
		cfg.waiter = sleep
	}
	if cfg.NoWorkBackOff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 0
		cfg.NoWorkBackOff = b
	}
	if cfg.MaxWorkTime <= 0 {
		cfg.MaxWorkTime = time.Minute
	}
	return cfg
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// doWork makes one call of WorkFunc. The call is detached from the loop's context so
// shutdown lets it finish, bounded by MaxWorkTime. Panics are recovered and traced.
func doWork(p o11y.Provider, cfg Config) (delay time.Duration, idle bool) {
	ctx, cancel := context.WithTimeout(o11y.WithProvider(context.Background(), p), cfg.MaxWorkTime)
	defer cancel()

	ctx, span := p.StartSpan(ctx, "worker loop: "+cfg.Name)
	span.AddField("loop_name", cfg.Name)
	span.RecordMetric(o11y.Timing("worker_loop", "loop_name", "result"))

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r, nil)
		}
		span.AddField("idle", idle)
		o11y.End(span, &err)
	}()

	err = cfg.WorkFunc(ctx)
	if errors.Is(err, ErrShouldBackoff) {
		err = nil
		idle = true
		delay = cfg.NoWorkBackOff.NextBackOff()
		span.AddField("backoff_ms", delay.Milliseconds())
	}
	return delay, idle
}
