package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/pgscope/pgscope/o11y"
)

// New opens a connection pool for the database described by cfg. Opening never dials,
// connections are established as sessions need them.
func New(ctx context.Context, cfg Config) (db *sqlx.DB, err error) {
	ctx, span := o11y.StartSpan(ctx, "config: create database engine")
	defer o11y.End(span, &err)
	defer func() {
		if err != nil {
			o11y.LogError(ctx, "Failed to create database engine", err)
		}
	}()

	if cfg.URL == "" {
		return nil, ErrNoDatabaseURL
	}

	connCfg, err := pgx.ParseConfig(cfg.URL.Raw())
	if err != nil {
		// pgconn.ParseConfigError masks the password itself
		return nil, fmt.Errorf("invalid database url %s: %w", cfg.URL.RedactURL(), err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.AppName != "" {
		connCfg.RuntimeParams["application_name"] = cfg.AppName
	}

	span.AddField("host", fmt.Sprintf("%s:%d", connCfg.Host, connCfg.Port))
	span.AddField("dbname", connCfg.Database)
	span.AddField("username", connCfg.User)
	span.AddField("pre_ping", cfg.PrePing)

	var opts []stdlib.OptionOpenDB
	if cfg.PrePing {
		opts = append(opts, stdlib.OptionResetSession(prePing))
	}

	db = sqlx.NewDb(stdlib.OpenDB(*connCfg, opts...), "pgx")
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	o11y.Log(ctx, "Database engine created successfully",
		o11y.Field("dbname", connCfg.Database),
		o11y.Field("max_open_conns", cfg.MaxOpenConns),
		o11y.Field("conn_max_lifetime", cfg.ConnMaxLifetime),
	)
	return db, nil
}

// prePing runs whenever database/sql reuses a pooled connection. Returning ErrBadConn
// makes the pool throw the connection away and hand out another.
func prePing(ctx context.Context, conn *pgx.Conn) error {
	if err := conn.Ping(ctx); err != nil {
		return driver.ErrBadConn
	}
	return nil
}

// Connect is New followed by a ping, retried with exponential backoff until it succeeds
// or ctx is done. Use it at startup to wait for the database to become available.
func Connect(ctx context.Context, cfg Config) (db *sqlx.DB, err error) {
	db, err = New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctx, span := o11y.StartSpan(ctx, "config: wait for database")
	defer o11y.End(span, &err)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	attempts := 0
	err = backoff.RetryNotify(func() error {
		attempts++
		return db.PingContext(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		o11y.Log(ctx, "database not ready",
			o11y.Field("error", err),
			o11y.Field("retry_in", next),
		)
	})
	span.AddField("attempts", attempts)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database did not become ready: %w", err)
	}
	return db, nil
}
