// Package config loads settings from flags, environment, an optional .env
// file and an optional YAML file, in that order of precedence.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Addr        string        `mapstructure:"addr"`
	BaseURL     string        `mapstructure:"base_url"`
	BehindProxy bool          `mapstructure:"behind_proxy"`
	MaxBytes    int           `mapstructure:"max_bytes"`
	Log         LogConfig     `mapstructure:"log"`
	Database    DBConfig      `mapstructure:"database"`
	Sweep       SweepConfig   `mapstructure:"sweep"`
	Session     SessionConfig `mapstructure:"session"`
	Rate        RateConfig    `mapstructure:"rate"`
	List        ListConfig    `mapstructure:"list"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DBConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	Secret     string `mapstructure:"secret"`
}

type RateConfig struct {
	Limit float64 `mapstructure:"limit"`
	Burst int     `mapstructure:"burst"`
}

type ListConfig struct {
	Limit int `mapstructure:"limit"`
}

var defaults = map[string]any{
	"addr":                ":3000",
	"base_url":            "",
	"behind_proxy":        false,
	"max_bytes":           1 << 20,
	"log.level":           "info",
	"log.pretty":          false,
	"database.url":        "sqlite:./pastebox.db",
	"database.max_conns":  5,
	"sweep.interval":      5 * time.Minute,
	"session.cookie_name": "pastebox_session",
	"session.secret":      "",
	"rate.limit":          5.0,
	"rate.burst":          10,
	"list.limit":          50,
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":                "addr",
	"base-url":            "base_url",
	"behind-proxy":        "behind_proxy",
	"max-bytes":           "max_bytes",
	"log-level":           "log.level",
	"log-pretty":          "log.pretty",
	"database-url":        "database.url",
	"database-max-conns":  "database.max_conns",
	"sweep-interval":      "sweep.interval",
	"session-cookie-name": "session.cookie_name",
	"session-secret":      "session.secret",
	"rate-limit":          "rate.limit",
	"rate-burst":          "rate.burst",
	"list-limit":          "list.limit",
}

func flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pastebox", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("env-file", ".env", "dotenv file to load if present")
	fs.String("addr", ":3000", "listen address")
	fs.String("base-url", "", "canonical base URL (optional)")
	fs.Bool("behind-proxy", false, "trust proxy headers for client IP and scheme")
	fs.Int("max-bytes", 1<<20, "maximum paste size in bytes")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("log-pretty", false, "human readable console logs")
	fs.String("database-url", "sqlite:./pastebox.db", "sqlite:PATH, bolt:PATH or postgres://...")
	fs.Int("database-max-conns", 5, "maximum pooled database connections")
	fs.Duration("sweep-interval", 5*time.Minute, "expired paste sweep interval")
	fs.String("session-cookie-name", "pastebox_session", "session cookie name")
	fs.String("session-secret", "", "key for signing session cookies (unsigned if empty)")
	fs.Float64("rate-limit", 5, "requests per second per client on page routes")
	fs.Int("rate-burst", 10, "rate limiter burst")
	fs.Int("list-limit", 50, "rows shown on dashboard and public lists")
	return fs
}

// Load parses args (without the program name) and the environment.
func Load(args []string) (*Config, error) {
	fs := flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envFile, _ := fs.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "load %s", envFile)
		}
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", name)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("pastebox")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("addr must not be empty")
	case c.MaxBytes <= 0:
		return errors.New("max_bytes must be positive")
	case c.Database.URL == "":
		return errors.New("database.url must not be empty")
	case c.Database.MaxConns <= 0:
		return errors.New("database.max_conns must be positive")
	case c.Sweep.Interval <= 0:
		return errors.New("sweep.interval must be positive")
	case c.Session.CookieName == "":
		return errors.New("session.cookie_name must not be empty")
	case c.Rate.Limit <= 0:
		return errors.New("rate.limit must be positive")
	case c.Rate.Burst <= 0:
		return errors.New("rate.burst must be positive")
	case c.List.Limit <= 0:
		return errors.New("list.limit must be positive")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return errors.Wrap(err, "base_url")
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL)
		}
	}
	return nil
}
