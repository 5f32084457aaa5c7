// Package migrate applies the SQL schema migrations of a service with goose.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/pgscope/pgscope/o11y"
)

// DefaultTable is where applied versions are recorded unless Options says otherwise.
const DefaultTable = "schema_migrations"

type Options struct {
	// Table records the applied versions, it defaults to DefaultTable.
	Table string
}

// Result describes one migration that was applied.
type Result struct {
	Version  int64
	Path     string
	Duration time.Duration
}

// Status describes one migration found in the migrations filesystem.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Up applies every pending migration in fsys, in version order.
func Up(ctx context.Context, db *sqlx.DB, fsys fs.FS, opts Options) (results []Result, err error) {
	ctx, span := o11y.StartSpan(ctx, "migrate: up")
	defer o11y.End(span, &err)

	p, err := newProvider(db, fsys, opts)
	if err != nil {
		return nil, err
	}
	applied, err := p.Up(ctx)
	for _, r := range applied {
		if r.Error != nil {
			continue
		}
		res := Result{Version: r.Source.Version, Path: r.Source.Path, Duration: r.Duration}
		o11y.Log(ctx, "migrate: applied",
			o11y.Field("version", res.Version),
			o11y.Field("path", res.Path),
			o11y.Field("duration_ms", res.Duration.Milliseconds()),
		)
		results = append(results, res)
	}
	span.AddField("applied", len(results))
	if err != nil {
		return results, fmt.Errorf("migration failed: %w", err)
	}
	return results, nil
}

// Statuses reports every migration in fsys and whether it has been applied.
func Statuses(ctx context.Context, db *sqlx.DB, fsys fs.FS, opts Options) (statuses []Status, err error) {
	ctx, span := o11y.StartSpan(ctx, "migrate: status")
	defer o11y.End(span, &err)

	p, err := newProvider(db, fsys, opts)
	if err != nil {
		return nil, err
	}
	found, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get migration status: %w", err)
	}
	for _, s := range found {
		statuses = append(statuses, Status{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return statuses, nil
}

// Versions lists the migration versions found in fsys without touching the database.
func Versions(db *sqlx.DB, fsys fs.FS, opts Options) ([]int64, error) {
	p, err := newProvider(db, fsys, opts)
	if err != nil {
		return nil, err
	}
	var versions []int64
	for _, s := range p.ListSources() {
		versions = append(versions, s.Version)
	}
	return versions, nil
}

// The provider is never closed: closing it closes the caller's pool.
func newProvider(db *sqlx.DB, fsys fs.FS, opts Options) (*goose.Provider, error) {
	table := opts.Table
	if table == "" {
		table = DefaultTable
	}
	store, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider("", db.DB, fsys,
		goose.WithStore(store),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return nil, fmt.Errorf("could not load migrations: %w", err)
	}
	return p, nil
}
