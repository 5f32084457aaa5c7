package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/pgscope/pgscope/o11y"
)

func TestNoEffectError(t *testing.T) {
	var err error

	err = ErrNop
	assert.Assert(t, o11y.IsWarning(err))

	err = fmt.Errorf("some other error: %w", err)
	assert.Assert(t, o11y.IsWarning(err))

	err = fmt.Errorf("another error: %w", err)
	assert.Assert(t, errors.Is(err, ErrNop))
	assert.Assert(t, o11y.IsWarning(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code    string
		want    error
		warning bool
	}{
		{code: "23503", want: ErrConstrained},
		{code: "P0001", want: ErrException},
		{code: "57014", want: ErrCanceled, warning: true},
		{code: "23505", want: ErrNop, warning: true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, Message: "boom", ConstraintName: "my_fk"}
			ok, err := mapError(fmt.Errorf("exec: %w", pgErr))
			assert.Assert(t, ok)
			assert.Check(t, errors.Is(err, tt.want))
			assert.Check(t, cmp.Equal(o11y.IsWarning(err), tt.warning))
			assert.Check(t, cmp.Equal(PgError(err).ConstraintName, "my_fk"))
		})
	}

	t.Run("unmapped code", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "42P01"}
		ok, err := mapError(pgErr)
		assert.Check(t, !ok)
		assert.Check(t, cmp.Equal(err, error(pgErr)))
	})

	t.Run("bad connection", func(t *testing.T) {
		ok, err := mapError(fmt.Errorf("query: %w", driver.ErrBadConn))
		assert.Check(t, ok)
		assert.Check(t, errors.Is(err, ErrBadConn))
		assert.Check(t, o11y.IsWarning(err))
	})

	t.Run("nil", func(t *testing.T) {
		ok, err := mapError(nil)
		assert.Check(t, !ok)
		assert.Check(t, err)
	})
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("relation does not exist")
	err := error(&connectionError{cause: cause})

	assert.Check(t, errors.Is(err, ErrConnection))
	assert.Check(t, errors.Is(err, cause))
	assert.Check(t, cmp.Error(err, "Database connection error: relation does not exist"))

	se := &StatusError{}
	assert.Assert(t, errors.As(err, &se))
	assert.Check(t, cmp.Equal(se.Status, 500))
}

func TestPgError_None(t *testing.T) {
	assert.Check(t, PgError(errors.New("not postgres")) == nil)
}
