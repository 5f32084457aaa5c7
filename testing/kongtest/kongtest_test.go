package kongtest

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type poolFlags struct {
	DatabaseURL     string        `env:"KONGTEST_DATABASE_URL" help:"Postgres connection URL."`
	MaxOpen         int           `default:"100" env:"DB_MAX_OPEN"`
	PrePing         bool          `default:"true" env:"DB_PRE_PING"`
	ConnMaxLifetime time.Duration `default:"1h" env:"DB_CONN_MAX_LIFETIME"`
}

func TestHelp_AppliesDefaults(t *testing.T) {
	c := poolFlags{}
	s := Help(t, &c)

	assert.Check(t, cmp.Contains(s, "Usage: test-app"))
	assert.Check(t, cmp.Contains(s, "--database-url"))
	assert.Check(t, cmp.Contains(s, "($KONGTEST_DATABASE_URL)"))
	assert.Check(t, cmp.DeepEqual(c, poolFlags{
		MaxOpen:         100,
		PrePing:         true,
		ConnMaxLifetime: time.Hour,
	}))
}

func TestHelpFor_Subcommand(t *testing.T) {
	var c struct {
		Serve struct {
			Addr string `default:":8000" env:"ADDR"`
		} `cmd:"" help:"Serve the API."`
		Migrate struct {
			Status bool `help:"Only print migration status."`
		} `cmd:"" help:"Apply migrations."`
	}

	s := HelpFor(t, &c, "migrate")
	assert.Check(t, cmp.Contains(s, "Usage: test-app migrate"))
	assert.Check(t, cmp.Contains(s, "--status"))
	assert.Check(t, !cmp.Contains(s, "--addr")().Success())
}
