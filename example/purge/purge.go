// Package purge deletes expired notes in the background, one batch per session.
package purge

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/example/notes"
	"github.com/pgscope/pgscope/system"
	"github.com/pgscope/pgscope/worker"
)

const defaultBatchSize = 100

type Purger struct {
	sessions  *db.SessionMaker
	store     *notes.Store
	batchSize int
}

func New(sessions *db.SessionMaker, store *notes.Store, batchSize int) *Purger {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Purger{sessions: sessions, store: store, batchSize: batchSize}
}

// Once deletes a single batch of expired notes and commits it. It returns
// worker.ErrShouldBackoff when there was nothing to delete.
func (p *Purger) Once(ctx context.Context) error {
	var n int64
	err := db.Scope(ctx, p.sessions, func(ctx context.Context, s *db.Session) (err error) {
		n, err = p.store.PurgeExpired(ctx, s, p.batchSize)
		if err != nil {
			return err
		}
		return s.Commit(ctx)
	})
	if err != nil {
		return err
	}
	if n < int64(p.batchSize) {
		return worker.ErrShouldBackoff
	}
	return nil
}

// Load runs the purger as a service of sys until it shuts down.
func Load(p *Purger, maxWait time.Duration, sys *system.System) {
	sys.AddService("purge", func(ctx context.Context) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = maxWait
		b.MaxElapsedTime = 0

		worker.Run(ctx, worker.Config{
			Name:          "purge-expired-notes",
			MaxWorkTime:   30 * time.Second,
			NoWorkBackOff: b,
			WorkFunc:      p.Once,
		})
		return nil
	})
}
