package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/pgscope/pgscope/internal/fakedb"
	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/o11y/honeycomb"
	"github.com/pgscope/pgscope/testing/fakemetrics"
	"github.com/pgscope/pgscope/testing/testcontext"
)

func TestSession_Lifecycle(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("nothing is sent until a statement runs", func(t *testing.T) {
		fdb, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)

		assert.Check(t, !s.InTransaction())
		assert.Check(t, s.Commit(ctx))
		assert.Check(t, s.Rollback(ctx))
		assert.Check(t, s.Close(ctx))
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{}))
	})

	t.Run("committed work is not rolled back on close", func(t *testing.T) {
		fdb, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)

		_, err = s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ($1)", "hi")
		assert.Assert(t, err)
		assert.Check(t, s.InTransaction())
		assert.Assert(t, s.Commit(ctx))
		assert.Check(t, !s.InTransaction())
		assert.Assert(t, s.Close(ctx))

		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Commits: 1}))
	})

	t.Run("uncommitted work is rolled back on close", func(t *testing.T) {
		fdb, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)

		_, err = s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ($1)", "hi")
		assert.Assert(t, err)
		assert.Assert(t, s.Close(ctx))

		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Rollbacks: 1}))
	})

	t.Run("a statement after commit begins a new transaction", func(t *testing.T) {
		fdb, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)

		_, err = s.ExecContext(ctx, "UPDATE notes SET body = 'a'")
		assert.Assert(t, err)
		assert.Assert(t, s.Commit(ctx))
		_, err = s.ExecContext(ctx, "UPDATE notes SET body = 'b'")
		assert.Assert(t, err)
		assert.Assert(t, s.Rollback(ctx))
		assert.Assert(t, s.Close(ctx))

		c := fdb.Counts()
		assert.Check(t, cmp.Equal(c.Begins, 2))
		assert.Check(t, cmp.Equal(c.Commits, 1))
		assert.Check(t, cmp.Equal(c.Rollbacks, 1))
	})

	t.Run("closed sessions refuse work", func(t *testing.T) {
		_, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		assert.Assert(t, s.Close(ctx))
		assert.Check(t, s.Close(ctx), "close is idempotent")

		_, err = s.ExecContext(ctx, "SELECT 1")
		assert.Check(t, cmp.ErrorIs(err, ErrSessionClosed))
		var n note
		assert.Check(t, cmp.ErrorIs(s.GetContext(ctx, &n, "SELECT 1"), ErrSessionClosed))
		assert.Check(t, cmp.ErrorIs(s.Commit(ctx), ErrSessionClosed))
		assert.Check(t, cmp.ErrorIs(s.Rollback(ctx), ErrSessionClosed))
	})

	t.Run("close ignores a cancelled context", func(t *testing.T) {
		fdb, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		_, err = s.ExecContext(ctx, "DELETE FROM notes")
		assert.Assert(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Check(t, s.Close(cctx))
		assert.Check(t, cmp.Equal(fdb.Counts().Rollbacks, 1))
	})
}

func TestSession_Open_DoneContext(t *testing.T) {
	_, db := fakedb.New()
	ctx, cancel := context.WithCancel(testcontext.Background())
	cancel()

	s, err := NewSessionMaker(db).Open(ctx)
	assert.Check(t, cmp.ErrorIs(err, context.Canceled))
	assert.Check(t, s == nil)
}

func TestSession_ErrorMapping(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("get with no rows", func(t *testing.T) {
		_, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		defer s.Close(ctx)

		var n note
		err = s.GetContext(ctx, &n, "SELECT id, body FROM notes WHERE id = $1", 1)
		assert.Check(t, cmp.ErrorIs(err, ErrNop))
		err = s.NamedGetContext(ctx, &n, "SELECT id, body FROM notes WHERE id = :id", note{ID: 1})
		assert.Check(t, cmp.ErrorIs(err, ErrNop))
	})

	t.Run("get and select with rows", func(t *testing.T) {
		fdb, db := fakedb.New()
		fdb.SetRows([]string{"id", "body"}, []driver.Value{int64(1), "first"}, []driver.Value{int64(2), "second"})
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		defer s.Close(ctx)

		var n note
		assert.Assert(t, s.GetContext(ctx, &n, "SELECT id, body FROM notes LIMIT 1"))
		assert.Check(t, cmp.DeepEqual(n, note{ID: 1, Body: "first"}))

		var ns []note
		assert.Assert(t, s.SelectContext(ctx, &ns, "SELECT id, body FROM notes"))
		assert.Check(t, cmp.Len(ns, 2))
	})

	t.Run("select with no rows", func(t *testing.T) {
		_, db := fakedb.New()
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		defer s.Close(ctx)

		var ns []note
		err = s.SelectContext(ctx, &ns, "SELECT id, body FROM notes")
		assert.Check(t, cmp.ErrorIs(err, ErrNop))
	})

	t.Run("exec affecting nothing", func(t *testing.T) {
		fdb, db := fakedb.New()
		fdb.SetRowsAffected(0)
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		defer s.Close(ctx)

		_, err = s.NamedExecContext(ctx, "DELETE FROM notes WHERE id = :id", note{ID: 7})
		assert.Check(t, cmp.ErrorIs(err, ErrNop))
		assert.Check(t, o11y.IsWarning(err))
	})

	t.Run("unique violation", func(t *testing.T) {
		fdb, db := fakedb.New()
		fdb.SetExecErr(&pgconn.PgError{Code: "23505", ConstraintName: "notes_pkey"})
		s, err := NewSessionMaker(db).Open(ctx)
		assert.Assert(t, err)
		defer s.Close(ctx)

		_, err = s.ExecContext(ctx, "INSERT INTO notes (id) VALUES (1)")
		assert.Check(t, cmp.ErrorIs(err, ErrNop))
		assert.Check(t, cmp.Equal(PgError(err).ConstraintName, "notes_pkey"))
	})
}

func TestScope(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("success leaves committing to the caller", func(t *testing.T) {
		fdb, db := fakedb.New()
		err := Scope(ctx, NewSessionMaker(db), func(ctx context.Context, s *Session) error {
			fromCtx, ok := SessionFromContext(ctx)
			assert.Check(t, ok)
			assert.Check(t, fromCtx == s)

			_, err := s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('kept')")
			if err != nil {
				return err
			}
			_, err = s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('dropped')")
			return err
		})
		assert.Assert(t, err)
		// the uncommitted insert is discarded by close
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Rollbacks: 1}))
	})

	t.Run("committed work survives", func(t *testing.T) {
		fdb, db := fakedb.New()
		err := Scope(ctx, NewSessionMaker(db), func(ctx context.Context, s *Session) error {
			_, err := s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('kept')")
			if err != nil {
				return err
			}
			return s.Commit(ctx)
		})
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Commits: 1}))
	})

	t.Run("errors roll back and translate", func(t *testing.T) {
		fdb, db := fakedb.New()
		ourErr := errors.New("relation \"notes\" does not exist")
		var session *Session
		err := Scope(ctx, NewSessionMaker(db), func(ctx context.Context, s *Session) error {
			session = s
			_, err := s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('x')")
			assert.Check(t, err)
			return ourErr
		})
		assert.Check(t, cmp.ErrorIs(err, ErrConnection))
		assert.Check(t, cmp.ErrorIs(err, ourErr))
		assert.Check(t, cmp.ErrorContains(err, "Database connection error"))
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Rollbacks: 1}))

		_, err = session.ExecContext(ctx, "SELECT 1")
		assert.Check(t, cmp.ErrorIs(err, ErrSessionClosed), "scope always closes")
	})

	t.Run("a failed rollback keeps the original error", func(t *testing.T) {
		fdb, db := fakedb.New()
		fdb.SetRollbackErr(errors.New("conn gone"))
		ourErr := errors.New("duplicate key")
		err := Scope(ctx, NewSessionMaker(db), func(ctx context.Context, s *Session) error {
			_, err := s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('x')")
			assert.Check(t, err)
			return ourErr
		})
		assert.Check(t, cmp.ErrorIs(err, ErrConnection))
		assert.Check(t, cmp.ErrorIs(err, ourErr))
		assert.Check(t, !strings.Contains(err.Error(), "conn gone"))
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Rollbacks: 1}))
	})

	t.Run("panics roll back, close and re-panic", func(t *testing.T) {
		fdb, db := fakedb.New()
		var session *Session
		func() {
			defer func() {
				assert.Check(t, cmp.Equal(recover(), "boom"))
			}()
			_ = Scope(ctx, NewSessionMaker(db), func(ctx context.Context, s *Session) error {
				session = s
				_, _ = s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('x')")
				panic("boom")
			})
		}()
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Rollbacks: 1}))
		_, err := session.ExecContext(ctx, "SELECT 1")
		assert.Check(t, cmp.ErrorIs(err, ErrSessionClosed))
	})

	t.Run("open failure never touches a session", func(t *testing.T) {
		fdb, db := fakedb.New()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := Scope(cctx, NewSessionMaker(db), func(context.Context, *Session) error {
			called = true
			return nil
		})
		assert.Check(t, !called)
		assert.Check(t, cmp.ErrorIs(err, ErrConnection))
		assert.Check(t, cmp.ErrorIs(err, context.Canceled))
		assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{}))
	})

	t.Run("cancellation mid request rolls back once", func(t *testing.T) {
		fdb, db := fakedb.New()
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		err := Scope(cctx, NewSessionMaker(db), func(ctx context.Context, s *Session) error {
			_, err := s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('x')")
			assert.Check(t, err)
			cancel()
			return ctx.Err()
		})
		assert.Check(t, cmp.ErrorIs(err, context.Canceled))
		assert.Check(t, cmp.Equal(fdb.Counts().Rollbacks, 1))
	})

	t.Run("nested translation wraps once", func(t *testing.T) {
		_, db := fakedb.New()
		sm := NewSessionMaker(db)
		err := Scope(ctx, sm, func(ctx context.Context, _ *Session) error {
			return Scope(ctx, sm, func(context.Context, *Session) error {
				return errors.New("inner")
			})
		})
		assert.Check(t, cmp.Error(err, "Database connection error: inner"))
	})
}

func TestSessionMaker_CloseTimeout(t *testing.T) {
	_, db := fakedb.New()
	sm := NewSessionMaker(db)
	sm.CloseTimeout = 0
	s, err := sm.Open(testcontext.Background())
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(s.closeTimeout, 10*time.Second))
}

type note struct {
	ID   int64  `db:"id"`
	Body string `db:"body"`
}

func TestSession_Metrics(t *testing.T) {
	m := &fakemetrics.Provider{}
	h := honeycomb.New(honeycomb.Config{Format: "none", Metrics: m})
	ctx := o11y.WithProvider(context.Background(), h)

	_, db := fakedb.New()
	s, err := NewSessionMaker(db).Open(ctx)
	assert.Assert(t, err)

	func() (err error) {
		ctx, span := Span(ctx, "notes", "insert")
		defer o11y.End(span, &err)
		_, err = s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ($1)", "hi")
		return err
	}()
	assert.Check(t, s.Commit(ctx))
	assert.Check(t, s.Close(ctx))
	h.Close(ctx)

	queries := m.Named("db.query")
	assert.Assert(t, cmp.Len(queries, 1))
	assert.Check(t, cmp.DeepEqual(queries[0].Tags,
		[]string{"db.entity:notes", "db.query_name:insert", "result:success"}))

	var steps []string
	for _, c := range m.Named("db.session") {
		steps = append(steps, c.Tags[0])
	}
	assert.Check(t, cmp.DeepEqual(steps, []string{"db.session_step:commit", "db.session_step:close"}))
}

func TestSession_StatementContextDoesNotEndTransaction(t *testing.T) {
	ctx := testcontext.Background()
	fdb, db := fakedb.New()
	s, err := NewSessionMaker(db).Open(ctx)
	assert.Assert(t, err)

	qctx, cancel := context.WithTimeout(ctx, time.Minute)
	_, err = s.ExecContext(qctx, "INSERT INTO notes (body) VALUES ('first')")
	assert.Assert(t, err)
	cancel()

	_, err = s.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('second')")
	assert.Assert(t, err)
	assert.Assert(t, s.Commit(ctx))
	assert.Check(t, s.Close(ctx))
	assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Commits: 1}))
}

func TestSession_CancelledScopeEndsTransaction(t *testing.T) {
	fdb, db := fakedb.New()
	ctx, cancel := context.WithCancel(testcontext.Background())
	s, err := NewSessionMaker(db).Open(ctx)
	assert.Assert(t, err)

	_, err = s.ExecContext(testcontext.Background(), "INSERT INTO notes (body) VALUES ('x')")
	assert.Assert(t, err)
	cancel()

	assert.Check(t, s.Commit(testcontext.Background()) != nil, "nothing commits once the request is gone")
	assert.Check(t, s.Close(testcontext.Background()))
	assert.Check(t, cmp.DeepEqual(fdb.Counts(), fakedb.Counts{Connects: 1, Begins: 1, Rollbacks: 1}))
}
