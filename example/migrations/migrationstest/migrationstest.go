package migrationstest

import (
	"context"
	"testing"

	"github.com/pgscope/pgscope/example/migrations"
	"github.com/pgscope/pgscope/testing/dbfixture"
)

// SetupDB creates a migrated database for a test, or skips the test if there is no database.
func SetupDB(ctx context.Context, t testing.TB) *dbfixture.Fixture {
	return dbfixture.SetupDB(ctx, t, dbfixture.Schema{Migrations: migrations.FS}, dbfixture.Connection{
		Host:     "localhost:5432",
		User:     "user",
		Password: "password",
	})
}
