package db

import (
	"errors"
	"time"

	"github.com/pgscope/pgscope/config/env"
	"github.com/pgscope/pgscope/config/secret"
)

var ErrNoDatabaseURL = errors.New("No DATABASE_URL found in environment variables") //nolint:stylecheck

const (
	EnvURL             = "DATABASE_URL"
	EnvURLFile         = "DATABASE_URL_FILE"
	EnvMaxOpenConns    = "DATABASE_MAX_OPEN_CONNS"
	EnvMaxIdleConns    = "DATABASE_MAX_IDLE_CONNS"
	EnvConnMaxLifetime = "DATABASE_CONN_MAX_LIFETIME"
	EnvConnMaxIdleTime = "DATABASE_CONN_MAX_IDLE_TIME"
	EnvConnectTimeout  = "DATABASE_CONNECT_TIMEOUT"
	EnvPrePing         = "DATABASE_PRE_PING"
	EnvAppName         = "DATABASE_APP_NAME"
)

type Config struct {
	// URL is a postgres connection string, either URL or keyword/value form.
	URL     secret.String
	AppName string

	MaxOpenConns int
	// MaxIdleConns above MaxOpenConns is lowered to it by database/sql.
	MaxIdleConns int
	// ConnMaxLifetime is the age after which a pooled connection is closed rather than reused.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime of zero leaves idle connections open until they reach ConnMaxLifetime.
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	// PrePing checks each connection is alive as it is taken from the pool.
	PrePing bool
}

// DefaultConfig returns a Config with the pool settings every service should start from.
func DefaultConfig() Config {
	return Config{
		// Chosen based on production metrics (during spikes in db io lag) to minimise waiting whilst protecting
		// the db server from possibly problematic load.
		MaxOpenConns:    100,
		MaxIdleConns:    50,
		ConnMaxLifetime: time.Hour,
		ConnectTimeout:  5 * time.Second,
		PrePing:         true,
	}
}

// LoadConfig reads the database settings via the loader, starting from DefaultConfig.
// Parse failures are recorded on the loader. A missing URL is reported by Validate.
func LoadConfig(l *env.Loader) Config {
	c := DefaultConfig()
	l.Secret(&c.URL, EnvURL)
	// a mounted secret file wins over the plain variable
	l.SecretFromFile(&c.URL, EnvURLFile)
	l.String(&c.AppName, EnvAppName)
	l.Int(&c.MaxOpenConns, EnvMaxOpenConns)
	l.Int(&c.MaxIdleConns, EnvMaxIdleConns)
	l.Duration(&c.ConnMaxLifetime, EnvConnMaxLifetime)
	l.Duration(&c.ConnMaxIdleTime, EnvConnMaxIdleTime)
	l.Duration(&c.ConnectTimeout, EnvConnectTimeout)
	l.Bool(&c.PrePing, EnvPrePing)
	return c
}

// ConfigFromEnv loads any .env file in the working directory and then reads the
// database settings from the process environment.
func ConfigFromEnv() (Config, error) {
	if err := env.LoadDotEnv(); err != nil {
		return Config{}, err
	}
	l := env.NewLoader()
	c := LoadConfig(l)
	if err := l.Err(); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.URL == "" {
		return ErrNoDatabaseURL
	}
	return nil
}
