// Package env provides a few helpers to load in environment variables
// with defaults
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/pgscope/pgscope/config/secret"
)

type Var struct {
	env     string
	envType string
	def     interface{}
}

func (f Var) String() string {
	return fmt.Sprintf("%-40s %-12s (%v)", f.env, f.envType, f.def)
}

func (f Var) Name() string {
	return f.env
}

type Loader struct {
	vars map[string]Var // a map of all the vars this loader has been asked to load
	err  error
}

func NewLoader() *Loader {
	return &Loader{
		vars: make(map[string]Var),
	}
}

// LoadDotEnv populates the process environment from the given dotenv files,
// defaulting to ".env" in the working directory. Variables that are already set
// win over the file. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (l *Loader) Err() error {
	return l.err
}

// SecretFromFile loads in the content of the file given in the env var.
// A slight potential trap is that the default value provided would be
// the content of the file and not the file path.
// If the env var is not set or is set but is empty then the default
// value is left unaltered. Trailing newlines in the file are dropped.
func (l *Loader) SecretFromFile(fld *secret.String, env string) {
	l.addVar(*fld, env, "file")
	fn, ok := os.LookupEnv(env)
	if !ok || fn == "" {
		return
	}
	content, err := os.ReadFile(fn) // #nosec G304 - we know we are reading secrets from files
	if err != nil {
		l.appendErr(fmt.Errorf("failed to read secret file: %w", err))
		return
	}
	*fld = secret.String(strings.TrimRight(string(content), "\r\n"))
}

// Secret sets fld from the env var given by env if it is present and not empty.
func (l *Loader) Secret(fld *secret.String, env string) {
	l.addVar(*fld, env, "secret")
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	*fld = secret.String(val)
}

// String sets fld from the env var given by env if it is present, even when empty.
func (l *Loader) String(fld *string, env string) {
	l.addVar(*fld, env, "string")
	if val, ok := os.LookupEnv(env); ok {
		*fld = val
	}
}

// Int sets fld from env parsed with strconv.Atoi. A value that does not parse
// leaves fld alone and is reported by Err.
func (l *Loader) Int(fld *int, env string) {
	l.addVar(*fld, env, "int")
	parse(l, fld, env, strconv.Atoi)
}

// Bool sets fld from env, accepting whatever strconv.ParseBool does.
func (l *Loader) Bool(fld *bool, env string) {
	l.addVar(*fld, env, "bool")
	parse(l, fld, env, strconv.ParseBool)
}

// Duration parses the env var with time.ParseDuration. A bare integer is taken
// as a number of seconds, so "3600" and "1h" are equivalent.
func (l *Loader) Duration(fld *time.Duration, env string) {
	l.addVar(*fld, env, "duration")
	parse(l, fld, env, func(val string) (time.Duration, error) {
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(val)
	})
}

func parse[T any](l *Loader, fld *T, env string, fn func(string) (T, error)) {
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	v, err := fn(val)
	if err != nil {
		l.appendErr(fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = v
}

type Vars []Var

// Sort the vars v in place alphabetically
func (v Vars) Sort() {
	sort.Slice(v, func(i, j int) bool {
		return v[i].env < v[j].env
	})
}

func (l *Loader) VarsUsed() Vars {
	vars := make(Vars, 0, len(l.vars))
	const maxDefaultLen = 80
	for _, v := range l.vars {
		if def, ok := v.def.(string); ok {
			def = strings.ReplaceAll(def, "\n", "\\n")
			if len(def) > maxDefaultLen {
				def = def[:maxDefaultLen] + " ..."
			}
			v.def = def
		}
		vars = append(vars, v)
	}
	vars.Sort()
	return vars
}

func (l *Loader) appendErr(err error) {
	l.err = multierror.Append(l.err, err)
}

func (l *Loader) addVar(def interface{}, env, envType string) {
	if _, ok := l.vars[env]; ok {
		panic("duplicate environment variable " + env)
	}
	l.vars[env] = Var{
		env:     env,
		envType: envType,
		def:     def,
	}
}
