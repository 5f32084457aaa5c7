package db

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgscope/pgscope/o11y"
)

var (
	ErrNop         = o11y.NewWarning("no update or results")
	ErrConstrained = errors.New("violates constraints")
	ErrException   = errors.New("exception")
	ErrCanceled    = o11y.NewWarning("statement canceled")
	ErrBadConn     = o11y.NewWarning("bad connection")

	// ErrConnection is what callers outside a session scope see when the unit of work failed.
	ErrConnection = &StatusError{Status: http.StatusInternalServerError, Detail: "Database connection error"}
	// ErrSessionClosed is returned by any use of a Session after Close.
	ErrSessionClosed = errors.New("session is closed")
)

// StatusError is a failure that carries the HTTP status and detail to report to a client.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return e.Detail
}

// connectionError wraps the cause of a failed unit of work so that it matches both
// ErrConnection and the cause under errors.Is.
type connectionError struct {
	cause error
}

func (e *connectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConnection.Detail, e.cause)
}

func (e *connectionError) Unwrap() []error {
	return []error{ErrConnection, e.cause}
}

const (
	pgForeignKeyConstraintErrorCode = "23503"
	pgUniqueViolationErrorCode      = "23505"
	pgExceptionRaised               = "P0001"
	pgStatementCanceled             = "57014"
)

// PgError returns the postgres error in err's chain, or nil if there is none.
func PgError(err error) *pgconn.PgError {
	e := &pgconn.PgError{}
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func mapExecErrors(err error, res sql.Result) error {
	found, err := mapError(err)
	if found {
		return err
	}
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNop
	}
	return nil
}

// mapError maps a few postgres errors to errors defined in this package, wrapping the original
// so PgError still finds it. If a mapping was made the returned bool will be true, if not the
// original error is returned and the bool will be false.
func mapError(err error) (bool, error) {
	if ok, e := mapBadCon(err); ok {
		return true, e
	}
	e := PgError(err)
	if e == nil {
		return false, err
	}
	switch e.Code {
	case pgForeignKeyConstraintErrorCode:
		return true, fmt.Errorf("%w: %w", ErrConstrained, e)
	case pgExceptionRaised:
		return true, fmt.Errorf("%w: %w", ErrException, e)
	case pgStatementCanceled:
		return true, fmt.Errorf("%w: %w", ErrCanceled, e)
	case pgUniqueViolationErrorCode:
		return true, fmt.Errorf("%w: %w", ErrNop, e)
	}
	return false, err
}

func mapBadCon(err error) (bool, error) {
	if errors.Is(err, driver.ErrBadConn) {
		return true, ErrBadConn
	}
	return false, err
}
