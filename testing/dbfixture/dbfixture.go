// Package dbfixture creates a throwaway Postgres database per test, with its own pool,
// transaction manager and session maker. Tests are skipped when no Postgres is reachable,
// unless CI=true.
package dbfixture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"gotest.tools/v3/assert"

	"github.com/pgscope/pgscope/config/secret"
	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/db/migrate"
	"github.com/pgscope/pgscope/o11y"
)

var globalFixture = &SharedFixture{}

var mustRunAllTests = os.Getenv("CI") == "true"

type SharedFixture struct {
	once sync.Once
	m    *Manager
}

func (s *SharedFixture) Manager() *Manager {
	return s.m
}

// SetupSystem prepares the running system for use.
func SetupSystem(t testing.TB, con Connection) *SharedFixture {
	globalFixture.once.Do(func() {
		var err error
		globalFixture.m, err = NewManager(con)
		if err != nil {
			var noDBError *NoDBError
			if errors.As(err, &noDBError) && !mustRunAllTests {
				t.Skip(noDBError.Error())
			}
			t.Fatal(err.Error())
		}
	})
	if globalFixture.m == nil {
		t.Skip("global fixtures failed setup")
	}
	return globalFixture
}

type Connection struct {
	Host     string
	User     string
	Password secret.String
}

// Schema prepares a fresh database, either from plain SQL or from goose migrations.
type Schema struct {
	SQL        string
	Migrations fs.FS
}

// SetupDB creates a database for the test, applies the schema and drops it on cleanup.
func SetupDB(ctx context.Context, t testing.TB, schema Schema, con Connection) *Fixture {
	t.Helper()
	shared := SetupSystem(t, con)
	fix, err := shared.Manager().NewDB(ctx, con, t.Name(), schema)
	assert.Assert(t, err)
	t.Cleanup(func() {
		p := o11y.FromContext(ctx)
		ctx, cancel := context.WithTimeout(o11y.WithProvider(context.Background(), p), 10*time.Second)
		defer cancel()
		assert.Check(t, fix.Cleanup(ctx))
	})
	return fix
}

type Manager struct {
	db *sqlx.DB
}

// NewManager connects to the maintenance database, which is used to create and drop test databases.
func NewManager(con Connection) (*Manager, error) {
	d, err := open(context.Background(), con, "postgres")
	if err != nil {
		return nil, err
	}
	return &Manager{db: d}, nil
}

// NewDB returns a new database fixture. The database name is generated from dbName with a random suffix.
func (m *Manager) NewDB(ctx context.Context, con Connection, dbName string, schema Schema) (*Fixture, error) {
	s := fmt.Sprintf("%s-%s", randomSuffix(), dbName)
	if len(s) > 63 {
		s = s[:63]
	}
	return m.newDB(ctx, con, s, schema)
}

const tableNameQuery = `
SELECT
    table_name,
    table_schema
FROM
    information_schema.tables
WHERE
    table_type = 'BASE TABLE'
AND
    table_schema NOT IN ('pg_catalog', 'information_schema')
`

func (m *Manager) newDB(ctx context.Context, con Connection, dbName string, schema Schema) (_ *Fixture, err error) {
	ctx, span := o11y.StartSpan(ctx, "dbfixture: newDB")
	defer o11y.End(span, &err)

	fix := &Fixture{DBName: dbName, Host: con.Host, User: con.User, Password: con.Password}
	span.AddField("dbname", fix.DBName)
	span.AddField("host", con.Host)

	_, err = m.db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{fix.DBName}.Sanitize()))
	if err != nil {
		return nil, err
	}
	fix.Cleanup = func(ctx context.Context) error {
		return m.cleanup(ctx, fix)
	}

	fix.DB, err = open(ctx, con, fix.DBName)
	if err != nil {
		return nil, err
	}
	fix.TX = db.NewTxManager(fix.DB)
	fix.Sessions = db.NewSessionMaker(fix.DB)

	if schema.SQL != "" {
		o11y.Log(ctx, "applying schema")
		_, err = fix.DB.ExecContext(ctx, schema.SQL)
		if err != nil {
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if schema.Migrations != nil {
		_, err = migrate.Up(ctx, fix.DB, schema.Migrations, migrate.Options{})
		if err != nil {
			return nil, err
		}
	}

	err = fix.DB.SelectContext(ctx, &fix.tables, tableNameQuery)
	if err != nil {
		return nil, fmt.Errorf("could not get list of tables: %w", err)
	}
	return fix, nil
}

type NoDBError struct {
	err error
}

func (e *NoDBError) Error() string {
	return fmt.Sprintf("failed to connect to db: %s", e.err)
}

func (e *NoDBError) Unwrap() error {
	return e.err
}

func open(ctx context.Context, con Connection, name string) (*sqlx.DB, error) {
	params := url.Values{}
	params.Set("sslmode", "disable")
	uri := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(con.User, con.Password.Raw()),
		Host:     con.Host,
		Path:     name,
		RawQuery: params.Encode(),
	}

	cfg := db.DefaultConfig()
	cfg.URL = secret.String(uri.String())
	cfg.AppName = "dbfixture"
	cfg.MaxOpenConns = 10
	cfg.MaxIdleConns = 5

	d, err := db.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	err = d.PingContext(ctx)
	if err != nil {
		_ = d.Close()
		return nil, &NoDBError{err: err}
	}
	return d, nil
}

func (m *Manager) cleanup(ctx context.Context, fix *Fixture) error {
	var err error
	if fix.DB != nil {
		err = fix.DB.Close()
	}
	if err != nil {
		o11y.LogError(ctx, "db: cleanup", err)
	}

	if os.Getenv("TEST_PRESERVE_DB") != "" {
		return nil
	}

	name := pgx.Identifier{fix.DBName}.Sanitize()
	// kick out any malingering connections before dropping the database
	_, err = m.db.ExecContext(ctx, fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM public;", name))
	if err != nil {
		return fmt.Errorf("revoke con: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
SELECT pid, pg_terminate_backend(pid)
FROM pg_stat_activity
WHERE datname = $1 AND pid <> pg_backend_pid();
`, fix.DBName)
	if err != nil {
		o11y.LogError(ctx, "db: cleanup drop con", err)
	}

	_, err = m.db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE %s", name))
	if err != nil {
		return fmt.Errorf("drop db: %w", err)
	}
	return nil
}

func randomSuffix() string {
	bytes := make([]byte, 3)
	if _, err := rand.Read(bytes); err != nil {
		return "not-random--i-hope-thats-ok"
	}
	return hex.EncodeToString(bytes)
}

type Fixture struct {
	DBName   string
	Host     string
	User     string
	Password secret.String
	DB       *sqlx.DB
	TX       *db.TxManager
	Sessions *db.SessionMaker
	Cleanup  func(ctx context.Context) error

	tables []table
}

type table struct {
	Schema string `db:"table_schema"`
	Name   string `db:"table_name"`
}

// Reset deletes every row of every table, leaving the schema (and migration history) intact.
func (f *Fixture) Reset(ctx context.Context) error {
	return f.TX.WithTx(ctx, func(ctx context.Context, tx db.Querier) error {
		_, err := tx.ExecContext(ctx, `SET session_replication_role = 'replica';`)
		if squelchNopError(err) != nil {
			return fmt.Errorf("could not disable constraint checks: %w", err)
		}

		var errs error
		for _, t := range f.tables {
			if t.Name == migrate.DefaultTable {
				continue
			}
			// nolint: gosec
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, pgx.Identifier{t.Schema, t.Name}.Sanitize()))
			if squelchNopError(err) != nil {
				errs = multierror.Append(errs, fmt.Errorf("could not delete from %s: %w", t.Name, err))
			}
		}
		if errs != nil {
			return errs
		}

		_, err = tx.ExecContext(ctx, `SET session_replication_role = 'origin';`)
		if squelchNopError(err) != nil {
			return fmt.Errorf("could not enable constraint checks: %w", err)
		}
		return nil
	})
}

func squelchNopError(err error) error {
	if err != nil && !errors.Is(err, db.ErrNop) {
		return err
	}
	return nil
}
