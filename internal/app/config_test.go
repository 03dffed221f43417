package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *App {
	return &App{v: viper.New(), Config: &Configuration{}}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	f := filepath.Join(t.TempDir(), "printwatch.yml")
	require.NoError(t, os.WriteFile(f, []byte(content), 0o600))

	return f
}

func TestLoadConfigurationDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	a := newTestApp()
	require.NoError(t, a.LoadConfiguration(""))

	cfg := a.Config
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, model.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, model.DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Second, cfg.ProgressTimeout)
	assert.Equal(t, model.DefaultStatusPath, cfg.StatusPath)
	assert.Equal(t, model.StoreKindMemory, cfg.Store.Kind)
	assert.Equal(t, "printwatch.alerts.low", cfg.Alerts.Subject)
	assert.False(t, cfg.Alerts.Enabled)
	assert.Equal(t, "0.0.0.0:9090", cfg.Metrics.Listen)
	assert.Len(t, cfg.Models, len(model.DefaultConsumableIndexes()))
}

func TestLoadConfigurationFile(t *testing.T) {
	f := writeConfig(t, `
log_level: debug
thresholds:
  low: 5
  medium: 40
concurrency: 8
fetch_timeout: 3s
catalog:
  file: /etc/printwatch/devices.yml
store:
  kind: postgres
  postgres:
    dsn: postgres://printwatch@localhost/printwatch
alerts:
  enabled: true
  nats_url: nats://localhost:4222
schedule: "@every 2h"
models:
  Lexmark CX725:
    toner: 1
    kit: null
    imaging: 5
`)

	a := newTestApp()
	require.NoError(t, a.LoadConfiguration(f))

	cfg := a.Config
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, model.Thresholds{Low: 5, Medium: 40}, cfg.Thresholds)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "/etc/printwatch/devices.yml", cfg.Catalog.File)
	assert.Equal(t, model.StoreKindPostgres, cfg.Store.Kind)
	assert.Equal(t, "postgres://printwatch@localhost/printwatch", cfg.Store.Postgres.DSN)
	assert.True(t, cfg.Alerts.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.Alerts.NatsURL)
	assert.Equal(t, "@every 2h", cfg.Schedule)

	m, err := cfg.ConsumableMap()
	require.NoError(t, err)

	indexes, ok := m.Lookup("Lexmark CX725")
	require.True(t, ok)
	assert.Equal(t, 1, *indexes.Toner)
	assert.Nil(t, indexes.Kit)
	assert.Equal(t, 5, *indexes.Imaging)

	// a configured table replaces the built-in one
	_, ok = m.Lookup("Lexmark T654")
	assert.False(t, ok)
}

func TestLoadConfigurationEnv(t *testing.T) {
	f := writeConfig(t, `
thresholds:
  low: 5
  medium: 40
`)

	t.Setenv("PRINTWATCH_THRESHOLDS_LOW", "15")
	t.Setenv("PRINTWATCH_CONCURRENCY", "4")
	t.Setenv("PRINTWATCH_STORE_KIND", "postgres")
	t.Setenv("PRINTWATCH_STORE_POSTGRES_DSN", "postgres://env@db/printwatch")
	t.Setenv("PRINTWATCH_ALERTS_ENABLED", "true")

	a := newTestApp()
	require.NoError(t, a.LoadConfiguration(f))

	cfg := a.Config
	assert.Equal(t, model.Thresholds{Low: 15, Medium: 40}, cfg.Thresholds)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, model.StoreKindPostgres, cfg.Store.Kind)
	assert.Equal(t, "postgres://env@db/printwatch", cfg.Store.Postgres.DSN)
	assert.True(t, cfg.Alerts.Enabled)
}

func TestLoadConfigurationErrors(t *testing.T) {
	a := newTestApp()
	err := a.LoadConfiguration(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, ErrConfig)

	f := writeConfig(t, `
thresholds:
  low: 30
  medium: 20
concurrency: 0
fetch_timeout: 10s
`)

	a = newTestApp()
	err = a.LoadConfiguration(f)
	require.ErrorIs(t, err, ErrConfig)

	// every failure is reported
	assert.Contains(t, err.Error(), "low threshold")
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "fetch_timeout")
}

func TestValidate(t *testing.T) {
	valid := func() *Configuration {
		return &Configuration{
			Thresholds:   model.DefaultThresholds(),
			Concurrency:  20,
			FetchTimeout: 5 * time.Second,
			StatusPath:   model.DefaultStatusPath,
			Store:        StoreOptions{Kind: model.StoreKindMemory},
			Models:       model.DefaultConsumableIndexes(),
		}
	}

	negative := -1

	tests := []struct {
		name      string
		mutate    func(c *Configuration)
		expectErr string
	}{
		{"valid", func(*Configuration) {}, ""},
		{"threshold range", func(c *Configuration) { c.Thresholds.Medium = 100 }, "1-99"},
		{"fetch timeout zero", func(c *Configuration) { c.FetchTimeout = 0 }, "fetch_timeout"},
		{"status path", func(c *Configuration) { c.StatusPath = "status.html" }, "status_path"},
		{"store kind", func(c *Configuration) { c.Store.Kind = "sqlite" }, "store.kind"},
		{"postgres dsn", func(c *Configuration) { c.Store.Kind = model.StoreKindPostgres }, "store.postgres.dsn"},
		{"schedule", func(c *Configuration) { c.Schedule = "@every 1m" }, "invalid poll schedule"},
		{
			"model index",
			func(c *Configuration) { c.Models["Lexmark T654"] = model.ConsumableIndexes{Toner: &negative} },
			"negative token index",
		},
		{"log alerts", func(c *Configuration) { c.Alerts.Enabled = true }, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)

			err := c.Validate()
			if tc.expectErr == "" {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, ErrConfig)
			assert.Contains(t, err.Error(), tc.expectErr)
		})
	}
}

func TestNew(t *testing.T) {
	f := writeConfig(t, "log_level: trace\n")

	a, err := New(f, model.LogLevelInfo)
	require.NoError(t, err)
	assert.Equal(t, logrus.TraceLevel, a.Logger.Level)

	a, err = New(f, model.LogLevelDebug)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, a.Logger.Level)
}
