// Package setup contains the wiring shared by the notes commands.
package setup

import (
	"context"
	_ "time/tzdata" // include embedded timezone data

	"github.com/pgscope/pgscope/config/o11y"
	"github.com/pgscope/pgscope/config/secret"
	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/system"
)

type CLI struct {
	AdminAddr string `env:"ADMIN_ADDR" default:":8001" help:"The address for the admin api to listen on"`

	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb" env:"O11Y_HONEYCOMB" default:"false" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"notes"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,color,text" default:"json" help:"Format used for stderr logging"`
	O11yRollbarToken     secret.String `name:"o11y-rollbar-token" env:"O11Y_ROLLBAR_TOKEN"`
	O11yRollbarEnv       string        `name:"o11y-rollbar-env" env:"O11Y_ROLLBAR_ENV" default:"production"`
}

func LoadO11y(version, mode string, cli CLI) (context.Context, func(context.Context), error) {
	cfg := o11y.Config{
		Statsd:            cli.O11yStatsd,
		RollbarToken:      cli.O11yRollbarToken,
		RollbarEnv:        cli.O11yRollbarEnv,
		RollbarServerRoot: "github.com/pgscope/pgscope/example",
		HoneycombEnabled:  cli.O11yHoneycombEnabled,
		HoneycombDataset:  cli.O11yHoneycombDataset,
		HoneycombKey:      cli.O11yHoneycombKey,
		Format:            cli.O11yFormat,
		Version:           version,
		Service:           "notes",
		StatsNamespace:    "pgscope.notes.",
		Mode:              mode,
	}
	return o11y.Setup(context.Background(), cfg)
}

// LoadDB reads the database settings from the environment (DATABASE_URL and friends,
// or a .env file) and registers the pool with sys.
func LoadDB(ctx context.Context, sys *system.System) (*db.SessionMaker, error) {
	cfg, err := db.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.AppName == "" {
		cfg.AppName = "notes"
	}
	sessions, _, err := db.Load(ctx, "notes", cfg, sys)
	return sessions, err
}
