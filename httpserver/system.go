package httpserver

import (
	"context"
	"fmt"

	"github.com/pgscope/pgscope/system"
)

// Load starts listening for cfg and registers the server with sys: Serve as a
// service named after the server, and its connection gauges.
func Load(ctx context.Context, cfg Config, sys *system.System) (*HTTPServer, error) {
	s, err := New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s server: %w", cfg.Name, err)
	}

	sys.AddService(cfg.Name+"-http", s.Serve)
	sys.Add(s.MetricsProducer())
	return s, nil
}
