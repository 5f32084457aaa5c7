package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/pgscope/pgscope/config/env"
	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/db/migrate"
	"github.com/pgscope/pgscope/example/api"
	"github.com/pgscope/pgscope/example/migrations"
	"github.com/pgscope/pgscope/example/notes"
	"github.com/pgscope/pgscope/example/purge"
	"github.com/pgscope/pgscope/example/setup"
	"github.com/pgscope/pgscope/httpserver"
	"github.com/pgscope/pgscope/httpserver/healthcheck"
	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/system"
	"github.com/pgscope/pgscope/termination"
)

var (
	// set by the linker
	Version = "dev"
	Date    = "unknown"
)

type cli struct {
	setup.CLI

	API     apiCmd     `cmd:"" name:"api" help:"Serve the notes API"`
	Migrate migrateCmd `cmd:"" name:"migrate" help:"Apply pending database migrations"`
	Env     envCmd     `cmd:"" name:"env" help:"List the database environment variables and their defaults"`
}

type envCmd struct{}

type apiCmd struct {
	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"5s" help:"Delay shutdown by this amount" hidden:""`
	Addr          string        `name:"api-addr" env:"API_ADDR" default:":8000" help:"The address for the API to listen on"`
	PurgeBatch    int           `env:"PURGE_BATCH" default:"100" help:"Expired notes deleted per transaction"`
	PurgeMaxWait  time.Duration `env:"PURGE_MAX_WAIT" default:"1m" help:"Longest pause between purges when nothing has expired"`
}

type migrateCmd struct {
	Status bool          `help:"Show which migrations have been applied instead of applying them"`
	Wait   time.Duration `env:"MIGRATE_WAIT" default:"1m" help:"How long to wait for the database to accept connections"`
}

func main() {
	c := cli{}
	kctx := kong.Parse(&c,
		kong.Name("notes"),
		kong.Description("A notes service where every request runs in its own database session."),
	)
	err := kctx.Run(&c.CLI)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
	log.Println("exited 0")
}

func (a *apiCmd) Run(cli *setup.CLI) (err error) {
	ctx, o11yCleanup, err := setup.LoadO11y(Version, "api", *cli)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(runSpan, &err)

	o11y.Log(ctx, "starting api",
		o11y.Field("version", Version),
		o11y.Field("date", Date),
	)

	sys := system.New(ctx)
	defer sys.Cleanup(ctx)

	sessions, err := setup.LoadDB(ctx, sys)
	if err != nil {
		return err
	}
	store := notes.NewStore()

	handler := api.New(ctx, api.Options{Sessions: sessions, Store: store}).Handler()
	_, err = httpserver.Load(ctx, httpserver.Config{
		Name:    "api",
		Addr:    a.Addr,
		Handler: handler,
	}, sys)
	if err != nil {
		return err
	}

	purge.Load(purge.New(sessions, store, a.PurgeBatch), a.PurgeMaxWait, sys)

	// Should be last so it collects all the health checks
	_, err = healthcheck.Load(ctx, cli.AdminAddr, sys)
	if err != nil {
		return err
	}

	return sys.Run(a.ShutdownDelay)
}

func (m *migrateCmd) Run(cli *setup.CLI) (err error) {
	ctx, o11yCleanup, err := setup.LoadO11y(Version, "migrate", *cli)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: migrate")
	defer o11y.End(runSpan, &err)

	cfg, err := db.ConfigFromEnv()
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.Wait)
	defer cancel()
	d, err := db.Connect(waitCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = d.Close()
	}()

	if m.Status {
		statuses, err := migrate.Statuses(ctx, d, migrations.FS, migrate.Options{})
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if s.Applied {
				applied = s.AppliedAt.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(os.Stdout, "%05d %-30s %s\n", s.Version, s.Path, applied)
		}
		return nil
	}

	results, err := migrate.Up(ctx, d, migrations.FS, migrate.Options{})
	runSpan.AddField("applied", len(results))
	return err
}

func (e *envCmd) Run(*setup.CLI) error {
	return printVars(os.Stdout)
}

func printVars(w io.Writer) error {
	l := env.NewLoader()
	_ = db.LoadConfig(l)
	for _, v := range l.VarsUsed() {
		if _, err := fmt.Fprintln(w, v.String()); err != nil {
			return err
		}
	}
	return nil
}
