package db

import (
	"context"

	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/system"
)

// Load creates the pool for cfg and registers it with sys: a readiness check and pool
// gauges under name, and a cleanup that closes the pool. Connections that sessions
// borrow all come from this one pool.
func Load(ctx context.Context, name string, cfg Config, sys *system.System) (*SessionMaker, *TxManager, error) {
	db, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	dbCheck := &HealthCheck{Name: name + "-db", DB: db}
	sys.Add(dbCheck)
	sys.AddCleanup(name+"-db", func(ctx context.Context) (err error) {
		_, span := o11y.StartSpan(ctx, "db: close pool")
		defer o11y.End(span, &err)
		span.AddField("name", name)
		return db.Close()
	})

	return NewSessionMaker(db), NewTxManager(db), nil
}
