// Package kongtest renders kong help output in tests.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
)

// Help returns the --help output for cli, parsed with defaults applied.
func Help(t *testing.T, cli interface{}) string {
	return HelpFor(t, cli)
}

// HelpFor returns the --help output for the command named by args. A cli with
// subcommands needs one named, otherwise kong reports the missing command.
func HelpFor(t *testing.T, cli interface{}, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	exitCode := -1
	app, err := kong.New(cli,
		kong.Name("test-app"),
		kong.Writers(&out, &out),
		kong.Exit(func(code int) { exitCode = code }),
	)
	assert.Assert(t, err)

	_, err = app.Parse(append(args, "--help"))
	assert.Check(t, err)
	assert.Check(t, cmp.Equal(exitCode, 0), "help should exit cleanly")
	return out.String()
}
