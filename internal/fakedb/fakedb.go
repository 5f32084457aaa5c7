// Package fakedb is a database/sql driver for tests that records the transaction
// lifecycle instead of talking to a database.
package fakedb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"

	"github.com/jmoiron/sqlx"
)

type Counts struct {
	Connects, Resets, Begins, Commits, Rollbacks int
}

type DB struct {
	// held from Begin until Commit or Rollback. database/sql rolls back cancelled
	// transactions asynchronously, so Counts locks it to wait for that
	txMu sync.Mutex

	mu           sync.Mutex
	counts       Counts
	deadConns    int
	execs        []string
	rowsAffected int64
	execErr      error
	rollbackErr  error
	cols         []string
	rows         [][]driver.Value
}

// New returns the fake and a pool backed by it.
func New() (*DB, *sqlx.DB) {
	f := &DB{rowsAffected: 1}
	return f, sqlx.NewDb(sql.OpenDB(connector{db: f}), "fake")
}

// Counts waits for any open transaction to end before reading the counters, so
// do not call it while one is expected to stay open.
func (f *DB) Counts() Counts {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

// Execs returns every statement passed to Exec, in order.
func (f *DB) Execs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execs...)
}

func (f *DB) SetRowsAffected(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rowsAffected = n
}

func (f *DB) SetExecErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execErr = err
}

// SetRollbackErr makes every rollback that follows fail with err, after it is counted.
func (f *DB) SetRollbackErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbackErr = err
}

// SetRows sets the result of every query that follows.
func (f *DB) SetRows(cols []string, rows ...[]driver.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols = cols
	f.rows = rows
}

// KillConns makes the next n pooled connections fail their reset.
func (f *DB) KillConns(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadConns = n
}

func (f *DB) update(fn func(f *DB)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type connector struct {
	db *DB
}

func (c connector) Connect(context.Context) (driver.Conn, error) {
	c.db.update(func(f *DB) { f.counts.Connects++ })
	return &conn{db: c.db}, nil
}

func (c connector) Driver() driver.Driver {
	return fakeDriver{}
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("use the connector")
}

type conn struct {
	db *DB
}

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *conn) Close() error {
	return nil
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.db.txMu.Lock()
	c.db.update(func(f *DB) { f.counts.Begins++ })
	return &tx{db: c.db}, nil
}

// ResetSession is what database/sql calls before reusing a pooled connection, the same
// hook the pgx driver pings from.
func (c *conn) ResetSession(context.Context) error {
	var dead bool
	c.db.update(func(f *DB) {
		f.counts.Resets++
		if f.deadConns > 0 {
			f.deadConns--
			dead = true
		}
	})
	if dead {
		return driver.ErrBadConn
	}
	return nil
}

func (c *conn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	var (
		err  error
		rows int64
	)
	c.db.update(func(f *DB) {
		f.execs = append(f.execs, query)
		err = f.execErr
		rows = f.rowsAffected
	})
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(rows), nil
}

func (c *conn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	r := &rows{}
	c.db.update(func(f *DB) {
		r.cols = f.cols
		r.data = f.rows
	})
	return r, nil
}

type tx struct {
	db *DB
}

func (t *tx) Commit() error {
	t.db.update(func(f *DB) { f.counts.Commits++ })
	t.db.txMu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	var err error
	t.db.update(func(f *DB) {
		f.counts.Rollbacks++
		err = f.rollbackErr
	})
	t.db.txMu.Unlock()
	return err
}

type rows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *rows) Columns() []string {
	return r.cols
}

func (r *rows) Close() error {
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.i])
	r.i++
	return nil
}
