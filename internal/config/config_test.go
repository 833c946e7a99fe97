package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"--env-file", ""})
	require.NoError(t, err)
	require.Equal(t, ":3000", cfg.Addr)
	require.Equal(t, 1<<20, cfg.MaxBytes)
	require.Equal(t, "sqlite:./pastebox.db", cfg.Database.URL)
	require.Equal(t, 5, cfg.Database.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.Sweep.Interval)
	require.Equal(t, "pastebox_session", cfg.Session.CookieName)
	require.Empty(t, cfg.Session.Secret)
	require.Equal(t, 5.0, cfg.Rate.Limit)
	require.Equal(t, 10, cfg.Rate.Burst)
	require.Equal(t, 50, cfg.List.Limit)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "bolt:/tmp/x.db")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SESSION_SECRET", "s3cret")

	cfg, err := Load([]string{"--env-file", ""})
	require.NoError(t, err)
	require.Equal(t, "bolt:/tmp/x.db", cfg.Database.URL)
	require.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	require.Equal(t, "s3cret", cfg.Session.Secret)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9000")

	cfg, err := Load([]string{"--env-file", "", "--addr", ":7000", "--max-bytes", "2048", "--behind-proxy"})
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Addr)
	require.Equal(t, 2048, cfg.MaxBytes)
	require.True(t, cfg.BehindProxy)
}

func TestDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LIST_LIMIT=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LIST_LIMIT") })

	cfg, err := Load([]string{"--env-file", path})
	require.NoError(t, err)
	require.Equal(t, 7, cfg.List.Limit)
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, err)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pastebox.yaml")
	body := "rate:\n  limit: 2.5\n  burst: 4\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load([]string{"--env-file", "", "--config", path})
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.Rate.Limit)
	require.Equal(t, 4, cfg.Rate.Burst)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load([]string{"--env-file", ""})
		require.NoError(t, err)
		return *cfg
	}

	cases := map[string]func(*Config){
		"max bytes":      func(c *Config) { c.MaxBytes = 0 },
		"sweep interval": func(c *Config) { c.Sweep.Interval = -time.Second },
		"max conns":      func(c *Config) { c.Database.MaxConns = 0 },
		"relative url":   func(c *Config) { c.BaseURL = "/paste" },
		"ftp url":        func(c *Config) { c.BaseURL = "ftp://example.com" },
		"cookie name":    func(c *Config) { c.Session.CookieName = "" },
		"rate":           func(c *Config) { c.Rate.Limit = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := base()
	cfg.BaseURL = "https://paste.example.com"
	require.NoError(t, cfg.Validate())
}
