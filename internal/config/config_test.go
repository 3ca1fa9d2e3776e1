package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc_addr: ":9443"
database:
  driver: postgres
  dsn: "host=db dbname=perf"
scheduler:
  parallelism: 4
  poll_interval: 250ms
table:
  levels: [pool, assetClass]
  horizons: [1, 3]
log:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9443", cfg.Server.GRPCAddr)
	assert.Equal(t, "dev-token", cfg.Server.APIToken, "unset fields keep their default")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Scheduler.Parallelism)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, []string{domain.LevelPool, domain.LevelAssetClass}, cfg.Table.Levels)
	assert.Equal(t, []int{1, 3}, cfg.Table.Horizons)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: postgres\n  dsn: from-file\n")

	t.Run("Explicit connection string", func(t *testing.T) {
		t.Setenv("DB_CONN_STR", "postgres://u:p@db/perf")
		t.Setenv("API_TOKEN", "secret")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@db/perf", cfg.Database.DSN)
		assert.Equal(t, "secret", cfg.Server.APIToken)
	})

	t.Run("Built from parts", func(t *testing.T) {
		t.Setenv("DB_HOST", "db")
		t.Setenv("DB_NAME", "perf")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "host=db port=5432 user=postgres password=postgres dbname=perf sslmode=disable", cfg.Database.DSN)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Default is valid", func(*Config) {}, ""},
		{"Unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"Empty DSN", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"Empty token", func(c *Config) { c.Server.APIToken = "" }, "server.api_token"},
		{"Fund is not a level", func(c *Config) { c.Table.Levels = []string{domain.LevelFund} }, "unknown grouping level"},
		{"Negative horizon", func(c *Config) { c.Table.Horizons = []int{-1} }, "table.horizons"},
		{"Bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
