package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/pgscope/pgscope/o11y"
)

// TxManager runs functions inside a transaction that is committed or rolled back for them.
// Use it for work that is not tied to a request Session.
type TxManager struct {
	DB *sqlx.DB
	// TestQuerier lets tests wrap the querier handed to each function.
	TestQuerier func(Querier) Querier
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{DB: db}
}

// WithTx is WithTransaction under its shorter name.
func (m *TxManager) WithTx(ctx context.Context, f func(context.Context, Querier) error) error {
	return m.WithTransaction(ctx, f)
}

// WithTransaction runs f in a Session of its own. The work is committed only if f
// returns nil and ctx is still live, otherwise it is rolled back, panics included.
// As with any Session, the transaction begins with the first statement f runs.
func (m *TxManager) WithTransaction(ctx context.Context, f func(context.Context, Querier) error) (err error) {
	ctx, span := o11y.StartSpan(ctx, "db: with transaction")
	defer o11y.End(span, &err)

	s, err := NewSessionMaker(m.DB).Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := s.Close(ctx); cErr != nil {
			o11y.AddField(ctx, "rollback_error", cErr)
		}
	}()

	var q Querier = s
	if m.TestQuerier != nil {
		q = m.TestQuerier(q)
	}
	err = f(ctx, q)
	if err != nil {
		return err
	}
	// f may have swallowed a cancellation, nothing is committed once ctx is done
	if err = ctx.Err(); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// NoTx returns a querier that runs each statement on its own, outside any transaction.
func (m *TxManager) NoTx() Querier {
	return unifiedQuerier{q: named{m.DB}}
}
