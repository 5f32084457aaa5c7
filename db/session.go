package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/recontext"
)

const defaultCloseTimeout = 10 * time.Second

// SessionMaker hands out Sessions bound to one pool. Sessions never autocommit, and
// nothing is sent to the database until a statement needs it.
type SessionMaker struct {
	db           *sqlx.DB
	// CloseTimeout bounds the rollback a Session does on Close, whatever the state
	// of the caller's context.
	CloseTimeout time.Duration
}

func NewSessionMaker(db *sqlx.DB) *SessionMaker {
	return &SessionMaker{db: db, CloseTimeout: defaultCloseTimeout}
}

func (m *SessionMaker) DB() *sqlx.DB {
	return m.db
}

// Open starts a new Session. It only fails if ctx is already done, in which case
// there is no request left to do work for. Transactions the session begins live as
// long as ctx, whatever contexts individual statements are given.
func (m *SessionMaker) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	timeout := m.CloseTimeout
	if timeout <= 0 {
		timeout = defaultCloseTimeout
	}
	return &Session{db: m.db, scope: ctx, closeTimeout: timeout}, nil
}

// Session is a unit of work. The first statement begins a transaction which stays
// open until Commit, Rollback or Close. Statements after a Commit or Rollback begin
// a new one. A Session is meant for a single request and serialises its callers.
type Session struct {
	db           *sqlx.DB
	// scope is the context of the request the session serves, used to begin transactions
	scope        context.Context
	closeTimeout time.Duration

	mu     sync.Mutex
	tx     *sqlx.Tx
	closed bool
}

// InTransaction reports whether the session has uncommitted work in flight.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// querier must be called with mu held. The transaction is begun on the session's
// scope, not ctx: database/sql rolls back once the begin context is done, and a
// statement's own timeout must not end the unit of work.
func (s *Session) querier() (Querier, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.db.BeginTxx(s.scope, nil)
		if err != nil {
			_, mapped := mapBadCon(err)
			return nil, fmt.Errorf("could not start transaction: %w", mapped)
		}
		s.tx = tx
	}
	return unifiedQuerier{q: named{s.tx}}, nil
}

func (s *Session) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.querier()
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

func (s *Session) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.querier()
	if err != nil {
		return err
	}
	return q.GetContext(ctx, dest, query, args...)
}

func (s *Session) NamedGetContext(ctx context.Context, dest interface{}, query string, arg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.querier()
	if err != nil {
		return err
	}
	return q.NamedGetContext(ctx, dest, query, arg)
}

func (s *Session) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.querier()
	if err != nil {
		return nil, err
	}
	return q.NamedExecContext(ctx, query, arg)
}

func (s *Session) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.querier()
	if err != nil {
		return err
	}
	return q.SelectContext(ctx, dest, query, args...)
}

// Commit makes the work done so far permanent. It is a no-op if nothing has been done.
func (s *Session) Commit(ctx context.Context) (err error) {
	_, span := sessionSpan(ctx, "commit")
	defer o11y.End(span, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		span.AddField("tx", false)
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		_, mapped := mapError(err)
		return fmt.Errorf("commit: %w", mapped)
	}
	return nil
}

// Rollback discards the work done since the last Commit. It is a no-op if nothing has been done.
func (s *Session) Rollback(ctx context.Context) (err error) {
	_, span := sessionSpan(ctx, "rollback")
	defer o11y.End(span, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	span.AddField("tx", s.tx != nil)
	return s.rollback()
}

// rollback must be called with mu held.
func (s *Session) rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	err := tx.Rollback()
	// database/sql has already rolled back a transaction whose context was cancelled
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Close rolls back anything not committed and returns the connection to the pool.
// Close ignores cancellation of ctx, so cleanup always happens. Closing twice is harmless.
func (s *Session) Close(ctx context.Context) (err error) {
	ctx, cancel := recontext.WithNewTimeout(ctx, s.closeTimeout)
	defer cancel()
	_, span := sessionSpan(ctx, "close")
	defer o11y.End(span, &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	span.AddField("discarded", s.tx != nil)
	return s.rollback()
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by WithSession, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// Scope opens a session, makes it available to fn both as an argument and via the context,
// and closes it when fn returns. If fn fails the session is rolled back and the error
// returned matches ErrConnection as well as the original error. If fn panics the session is
// rolled back and closed before the panic continues. Scope never commits, fn decides that.
func Scope(ctx context.Context, sm *SessionMaker, fn func(context.Context, *Session) error) (err error) {
	ctx, span := o11y.StartSpan(ctx, "db: scope")
	defer o11y.End(span, &err)

	s, err := sm.Open(ctx)
	if err != nil {
		return Translate(ctx, err)
	}

	defer func() {
		p := recover()
		if p != nil || err != nil {
			if rErr := s.Rollback(ctx); rErr != nil {
				o11y.AddField(ctx, "rollback_error", rErr)
			}
		}
		if cErr := s.Close(ctx); cErr != nil {
			o11y.AddField(ctx, "close_error", cErr)
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(WithSession(ctx, s), s); err != nil {
		return Translate(ctx, err)
	}
	return nil
}

// Translate logs err as a database connection error and wraps it so it matches ErrConnection.
// Errors that already match ErrConnection are returned as they are.
func Translate(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrConnection) {
		return err
	}
	o11y.LogError(ctx, "Database connection error", err)
	return &connectionError{cause: err}
}
