package honeycomb

import (
	"errors"
	"io"
	"os"

	"github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/pgscope/pgscope/o11y"
)

type Config struct {
	Host    string
	Dataset string
	Key     string
	// Format is how spans are written to Writer: json (the default), text, color or none.
	Format string
	// SendTraces ships spans to honeycomb as well as writing them.
	SendTraces bool
	// Sender replaces the honeycomb API sender, for tests.
	Sender        transmission.Sender
	SampleTraces  bool
	SampleKeyFunc func(map[string]interface{}) string
	SampleRates   map[string]int
	// Writer defaults to stderr.
	Writer      io.Writer
	Metrics     o11y.ClosableMetricsProvider
	ServiceName string

	Debug bool
}

func (c *Config) Validate() error {
	if c.SendTraces && c.Key == "" && c.Sender == nil {
		return errors.New("honeycomb_key key required for honeycomb")
	}
	return nil
}

func (c *Config) sender() transmission.Sender {
	w := c.Writer
	if w == nil {
		w = os.Stderr
	}

	var senders []transmission.Sender
	if c.SendTraces {
		senders = append(senders, c.remote())
	}

	switch c.Format {
	case "text":
		senders = append(senders, &TextSender{w: w})
	case "color", "colour":
		senders = append(senders, &TextSender{w: w, colour: true})
	case "none":
	default:
		senders = append(senders, &transmission.WriterSender{W: w})
	}

	if len(senders) == 0 {
		senders = append(senders, &transmission.DiscardSender{})
	}
	return &MultiSender{Senders: senders}
}

func (c *Config) remote() transmission.Sender {
	if c.Sender != nil {
		return c.Sender
	}
	return &transmission.Honeycomb{
		MaxBatchSize:         libhoney.DefaultMaxBatchSize,
		BatchTimeout:         libhoney.DefaultBatchTimeout,
		MaxConcurrentBatches: libhoney.DefaultMaxConcurrentBatches,
		PendingWorkCapacity:  libhoney.DefaultPendingWorkCapacity,
		UserAgentAddition:    c.ServiceName,
	}
}
