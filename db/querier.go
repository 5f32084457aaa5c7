package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"
)

// Querier can either be a *sqlx.DB, a *sqlx.Tx or a *Session
type Querier interface {
	// The following are implemented by sql.DB, sql.Tx

	// ExecContext executes the query with placeholder parameters that match the args.
	// Use this if the query does not use named parameters (for that use NamedExecContext),
	// and you do not care about the data the query generates.
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// The following are implemented by sqlx.DB, sqlx.Tx

	// GetContext expects placeholder parameters in the query and will bind args to them.
	// A single row result will be mapped to dest which must be a pointer to a struct.
	// In the case of no result the error returned will be ErrNop.
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// NamedGetContext expect a query with named parameters, fields from the arg struct will be mapped
	// to the named parameters. A single row result will be mapped to dest which must be a pointer to a struct.
	NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error

	// NamedExecContext expect a query with named parameters, fields from the arg struct will be mapped
	// to the named parameters. Use this if you do not care about the data the query generates, and
	// you don't want to use placeholder parameters (see ExecContext)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)

	// SelectContext expects placeholder parameters in the query and will bind args to them.
	// Each resultant row will be scanned into dest, which must be a slice.
	// (If you expect (or want) a single row in the response use GetContext instead.)
	// An empty result is reported as ErrNop.
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// namedExt is what sqlx.DB and sqlx.Tx have in common, which is enough to add NamedGetContext.
type namedExt interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// named adds the NamedGetContext method that sqlx never shipped.
type named struct {
	namedExt
}

func (e named) NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	namedQuery, args, err := sqlx.Named(query, arg)
	if err != nil {
		return fmt.Errorf("could not map named: %w", err)
	}
	return e.GetContext(ctx, dest, e.Rebind(namedQuery), args...)
}

// unifiedQuerier wraps a Querier with helpers to return our standard errors.
type unifiedQuerier struct {
	q Querier
}

func (u unifiedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := u.q.ExecContext(ctx, query, args...)
	return result, mapExecErrors(err, result)
}

func (u unifiedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return mapGetError(u.q.GetContext(ctx, dest, query, args...))
}

func (u unifiedQuerier) NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	return mapGetError(u.q.NamedGetContext(ctx, dest, query, arg))
}

func (u unifiedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	result, err := u.q.NamedExecContext(ctx, query, arg)
	return result, mapExecErrors(err, result)
}

func (u unifiedQuerier) SelectContext(ctx context.Context,
	dest interface{}, query string, args ...interface{}) error {

	if err := u.q.SelectContext(ctx, dest, query, args...); err != nil {
		_, err = mapError(err)
		return err // This error never represents the no rows condition
	}
	// SelectContext has asserted dest is a pointer to a slice
	value := reflect.ValueOf(dest)
	direct := reflect.Indirect(value)
	if direct.Len() == 0 {
		return ErrNop
	}
	return nil
}

func mapGetError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNop
	}
	_, err = mapError(err)
	return err
}
