// Package o11y wires the honeycomb trace provider, statsd metrics and rollbar panic
// reporting together from a single Config.
package o11y

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"

	"github.com/pgscope/pgscope/config/secret"
	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/o11y/honeycomb"
)

type Config struct {
	Statsd            string
	RollbarToken      secret.String
	RollbarEnv        string
	RollbarServerRoot string
	HoneycombEnabled  bool
	HoneycombDataset  string
	HoneycombKey      secret.String
	SampleTraces      bool
	SampleRates       map[string]int
	Format            string
	Version           string
	Service           string
	StatsNamespace    string

	// Optional
	Mode            string
	Debug           bool
	RollbarDisabled bool
	Writer          io.Writer
}

// Setup initialises the o11y provider and returns a context carrying it along with
// the function that flushes and closes it.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	honeyConfig, err := honeyComb(o)
	if err != nil {
		return nil, nil, err
	}

	hostname, _ := os.Hostname()

	if o.Statsd != "" {
		tags := []string{
			"service:" + o.Service,
			"version:" + o.Version,
			"hostname:" + hostname,
		}
		if o.Mode != "" {
			tags = append(tags, "mode:"+o.Mode)
		}
		stats, err := statsd.New(o.Statsd,
			statsd.WithNamespace(o.StatsNamespace),
			statsd.WithTags(tags),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("statsd: %w", err)
		}
		honeyConfig.Metrics = stats
	}

	o11yProvider := honeycomb.New(honeyConfig)
	o11yProvider.AddGlobalField("service", o.Service)
	o11yProvider.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		o11yProvider.AddGlobalField("mode", o.Mode)
	}

	if o.RollbarToken != "" {
		client := rollbar.NewAsync(o.RollbarToken.Raw(), o.RollbarEnv, o.Version, hostname, o.RollbarServerRoot)
		client.SetEnabled(!o.RollbarDisabled)
		o11yProvider = rollBarHoneycombProvider{
			Provider:      o11yProvider,
			rollBarClient: client,
		}
	}

	return o11y.WithProvider(ctx, o11yProvider), o11yProvider.Close, nil
}

type rollBarHoneycombProvider struct {
	o11y.Provider
	rollBarClient *rollbar.Client
}

func (p rollBarHoneycombProvider) Close(ctx context.Context) {
	p.Provider.Close(ctx)
	_ = p.rollBarClient.Close()
}

func (p rollBarHoneycombProvider) RollBarClient() *rollbar.Client {
	return p.rollBarClient
}

func honeyComb(o Config) (honeycomb.Config, error) {
	conf := honeycomb.Config{
		Dataset:      o.HoneycombDataset,
		Key:          o.HoneycombKey.Raw(),
		Format:       o.Format,
		SendTraces:   o.HoneycombEnabled,
		SampleTraces: o.SampleTraces,
		SampleRates:  o.SampleRates,
		SampleKeyFunc: func(fields map[string]interface{}) string {
			return fmt.Sprintf("%s %s %v",
				fields["http.server_name"],
				fields["http.route"],
				fields["http.status_code"],
			)
		},
		Writer:      o.Writer,
		ServiceName: o.Service,
		Debug:       o.Debug,
	}
	return conf, conf.Validate()
}
