package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/printwatch/internal/alert"
	"github.com/metal-toolbox/printwatch/internal/extractor"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/poll"
	"github.com/metal-toolbox/printwatch/internal/scheduler"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const (
	defaultConfigFile    = ".printwatch.yml"
	defaultMetricsListen = "0.0.0.0:9090"
)

var (
	ErrConfig = errors.New("configuration error")
)

// Configuration holds application configuration read from a YAML or set by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// Thresholds classify consumable levels, in percent.
	Thresholds model.Thresholds `mapstructure:"thresholds"`

	// Concurrency is the maximum number of device fetches in flight.
	Concurrency int `mapstructure:"concurrency"`

	// FetchTimeout is the per device status page request timeout, at most 5s.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// ProgressTimeout bounds the wait for progress output after a run.
	ProgressTimeout time.Duration `mapstructure:"progress_timeout"`

	// StatusPath is the status page path requested from each device.
	StatusPath string `mapstructure:"status_path"`

	// Models maps printer model names to status page token indexes,
	// the built-in Lexmark table applies when not set.
	Models map[string]model.ConsumableIndexes `mapstructure:"models"`

	Catalog CatalogOptions `mapstructure:"catalog"`

	Store StoreOptions `mapstructure:"store"`

	Alerts AlertOptions `mapstructure:"alerts"`

	// Schedule is the cron spec for automatic runs, for example "@every 1h".
	Schedule string `mapstructure:"schedule"`

	Metrics MetricsOptions `mapstructure:"metrics"`
}

// CatalogOptions locate the device catalog.
type CatalogOptions struct {
	File string `mapstructure:"file"`
}

// StoreOptions select the reading and stock ledger storage.
type StoreOptions struct {
	// Kind is one of memory, postgres.
	Kind     model.StoreKind `mapstructure:"kind"`
	Postgres PostgresOptions `mapstructure:"postgres"`
}

// PostgresOptions configure the postgres store.
type PostgresOptions struct {
	DSN string `mapstructure:"dsn"`
}

// AlertOptions configure low level alerting.
//
// With alerts enabled and no NatsURL, alerts are written to the log.
type AlertOptions struct {
	Enabled bool   `mapstructure:"enabled"`
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// MetricsOptions configure the prometheus endpoint.
type MetricsOptions struct {
	Listen string `mapstructure:"listen"`
}

func (a *App) setDefaults() {
	a.v.SetDefault("log_level", "info")
	a.v.SetDefault("thresholds.low", model.DefaultThresholds().Low)
	a.v.SetDefault("thresholds.medium", model.DefaultThresholds().Medium)
	a.v.SetDefault("concurrency", model.DefaultConcurrency)
	a.v.SetDefault("fetch_timeout", extractor.MaxFetchTimeout)
	a.v.SetDefault("progress_timeout", poll.DefaultProgressTimeout)
	a.v.SetDefault("status_path", model.DefaultStatusPath)
	a.v.SetDefault("store.kind", string(model.StoreKindMemory))
	a.v.SetDefault("alerts.subject", alert.DefaultSubject)
	a.v.SetDefault("metrics.listen", defaultMetricsListen)
}

// LoadConfiguration loads application configuration
//
// Reads in the cfgFile when available and overrides from environment variables.
// With no cfgFile, ~/.printwatch.yml is read when it exists.
func (a *App) LoadConfiguration(cfgFile string) error {
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(model.AppName)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	a.setDefaults()

	if cfgFile == "" {
		cfgFile = homeConfigFile()
	}

	if cfgFile != "" {
		fh, err := os.Open(cfgFile)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}

		defer fh.Close()

		if err = a.v.ReadConfig(fh); err != nil {
			return errors.Wrap(ErrConfig, "ReadConfig error:"+err.Error())
		}
	}

	if err := a.envBindVars(); err != nil {
		return errors.Wrap(ErrConfig, "env var bind error:"+err.Error())
	}

	if err := a.v.Unmarshal(a.Config); err != nil {
		return errors.Wrap(ErrConfig, "Unmarshal error: "+err.Error())
	}

	if len(a.Config.Models) == 0 {
		a.Config.Models = model.DefaultConsumableIndexes()
	}

	return a.Config.Validate()
}

func homeConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	f := filepath.Join(home, defaultConfigFile)
	if _, err := os.Stat(f); err != nil {
		return ""
	}

	return f
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (a *App) envBindVars() error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(a.Config, &envKeysMap); err != nil {
		return err
	}

	// model indexes are only read from the config file
	delete(envKeysMap, "models")

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for k := range flat {
		if err := a.v.BindEnv(k); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

// Validate returns all configuration errors found, wrapped in ErrConfig.
func (c *Configuration) Validate() error {
	var merr *multierror.Error

	if err := c.Thresholds.Validate(); err != nil {
		merr = multierror.Append(merr, err)
	}

	if c.Concurrency < 1 {
		merr = multierror.Append(merr, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}

	if c.FetchTimeout <= 0 || c.FetchTimeout > extractor.MaxFetchTimeout {
		merr = multierror.Append(
			merr,
			fmt.Errorf("fetch_timeout must be within (0, %s], got %s", extractor.MaxFetchTimeout, c.FetchTimeout),
		)
	}

	if !strings.HasPrefix(c.StatusPath, "/") {
		merr = multierror.Append(merr, fmt.Errorf("status_path must start with '/', got %q", c.StatusPath))
	}

	for name, indexes := range c.Models {
		for _, i := range []*int{indexes.Toner, indexes.Kit, indexes.Imaging} {
			if i != nil && *i < 0 {
				merr = multierror.Append(merr, fmt.Errorf("models: %s has a negative token index", name))
				break
			}
		}
	}

	if !slices.Contains(model.StoreKinds(), c.Store.Kind) {
		merr = multierror.Append(merr, fmt.Errorf("store.kind must be one of %v, got %q", model.StoreKinds(), c.Store.Kind))
	}

	if c.Store.Kind == model.StoreKindPostgres && c.Store.Postgres.DSN == "" {
		merr = multierror.Append(merr, errors.New("store.postgres.dsn is required with the postgres store"))
	}

	if c.Alerts.Enabled && c.Alerts.NatsURL != "" && c.Alerts.Subject == "" {
		merr = multierror.Append(merr, errors.New("alerts.subject is required to publish alerts"))
	}

	if c.Schedule != "" {
		if _, err := scheduler.ParseSchedule(c.Schedule); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(ErrConfig, err.Error())
	}

	return nil
}

// ConsumableMap returns the configured model table.
func (c *Configuration) ConsumableMap() (model.ConsumableMap, error) {
	m, err := model.NewConsumableMap(c.Models)
	if err != nil {
		return model.ConsumableMap{}, errors.Wrap(ErrConfig, "models: "+err.Error())
	}

	return m, nil
}
