// Package config loads txstore settings from defaults, an optional
// txstore.yaml file and TXSTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Backend drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration of the txstore CLI.
type Config struct {
	// Store holds the retry policy of Store.Run.
	Store StoreConfig `mapstructure:"store"`
	// Backend selects the executor every commit is mirrored to.
	Backend BackendConfig `mapstructure:"backend"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Workload describes the demo workload run by the CLI.
	Workload WorkloadConfig `mapstructure:"workload"`
}

type StoreConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries" validate:"lte=1000"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
}

type BackendConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=memory postgres pgx sqlite"`
	DSN          string `mapstructure:"dsn" validate:"required_unless=Driver memory"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	// Migrate applies the embedded migrations (postgres, pgx) or creates the
	// table (sqlite) on start.
	Migrate bool `mapstructure:"migrate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address" validate:"required_if=Enabled true"`
	Path      string `mapstructure:"path" validate:"startswith=/"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

type WorkloadConfig struct {
	// SeedFile is a YAML file of tables and rows loaded before the workload.
	SeedFile string `mapstructure:"seed_file"`
	Workers  int    `mapstructure:"workers" validate:"gte=1,lte=1024"`
	// Increments is the number of counter increments each worker commits.
	Increments int `mapstructure:"increments" validate:"gte=0"`
	Counters   int `mapstructure:"counters" validate:"gte=1"`
}

// Load reads the configuration. A missing config file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TXSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("txstore")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "/etc/txstore"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.max_retries", 5)
	v.SetDefault("store.initial_interval", "5ms")
	v.SetDefault("store.max_interval", "200ms")

	v.SetDefault("backend.driver", DriverMemory)
	v.SetDefault("backend.dsn", "")
	v.SetDefault("backend.max_open_conns", 10)
	v.SetDefault("backend.max_idle_conns", 5)
	v.SetDefault("backend.migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9091")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "txstore")

	v.SetDefault("workload.seed_file", "")
	v.SetDefault("workload.workers", 8)
	v.SetDefault("workload.increments", 100)
	v.SetDefault("workload.counters", 4)
}

var validate = validator.New()

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Backend.Driver = strings.ToLower(c.Backend.Driver)
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Backend.Driver == DriverSQLite && c.Backend.DSN == ":memory:" && c.Backend.MaxOpenConns != 1 {
		return fmt.Errorf("sqlite :memory: needs max_open_conns 1, got %d", c.Backend.MaxOpenConns)
	}
	return nil
}
