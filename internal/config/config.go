// Package config provides YAML and environment based configuration for whisperlog.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature float32 = 0.7

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config is the top-level whisperlog configuration. Values come from an
// optional YAML file and are then overridden by environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Completion CompletionConfig `yaml:"completion"`
	Journal    JournalConfig    `yaml:"journal"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig selects and configures the relational backend. Postgres and
// SQLite use URL; MySQL may use URL or the discrete host fields.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DATABASE_DRIVER"`
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	Name            string        `yaml:"name" env:"DB_NAME"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"DB_QUERY_TIMEOUT"`
}

// CompletionConfig configures the OpenAI-compatible completion provider.
// An empty APIKey disables generation; requests still persist transcripts.
// Temperature is a pointer so that an explicit 0 survives defaulting.
type CompletionConfig struct {
	APIKey      string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Model       string        `yaml:"model" env:"OPENAI_MODEL"`
	MaxTokens   int           `yaml:"max_tokens" env:"OPENAI_MAX_TOKENS"`
	Temperature *float32      `yaml:"temperature" env:"OPENAI_TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"COMPLETION_TIMEOUT"`
}

// JournalConfig tunes the journal store. A negative CacheSize disables the
// known-journal cache.
type JournalConfig struct {
	CacheSize int `yaml:"cache_size" env:"JOURNAL_CACHE_SIZE"`
}

// BackfillConfig controls the scheduled journal backfill.
type BackfillConfig struct {
	Enabled   bool          `yaml:"enabled" env:"BACKFILL_ENABLED"`
	Schedule  string        `yaml:"schedule" env:"BACKFILL_SCHEDULE"`
	Lookback  time.Duration `yaml:"lookback" env:"BACKFILL_LOOKBACK"`
	BatchSize int           `yaml:"batch_size" env:"BACKFILL_BATCH_SIZE"`
}

// LogConfig selects log level and output format ("console" or "json").
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled" env:"METRICS_DISABLED"`
	Path     string `yaml:"path" env:"METRICS_PATH"`
}

// Load reads an optional YAML config file, overlays the process environment
// and returns a validated Config. An empty path skips the file.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		data = b
	}
	return parse(data, nil)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, map[string]string{})
}

// ParseWithEnv is Parse followed by an overlay of the given variables.
func ParseWithEnv(data []byte, environ map[string]string) (*Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return parse(data, environ)
}

// parse decodes YAML, overlays environ (the process environment when nil),
// applies defaults and validates.
func parse(data []byte, environ map[string]string) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Driver == DriverMySQL {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 10 * time.Second
	}

	if c.Completion.Model == "" {
		c.Completion.Model = "gpt-4"
	}
	if c.Completion.MaxTokens == 0 {
		c.Completion.MaxTokens = 1000
	}
	if c.Completion.Temperature == nil {
		t := DefaultTemperature
		c.Completion.Temperature = &t
	}
	if c.Completion.Timeout == 0 {
		c.Completion.Timeout = 60 * time.Second
	}

	if c.Journal.CacheSize == 0 {
		c.Journal.CacheSize = 1024
	}

	if c.Backfill.Schedule == "" {
		c.Backfill.Schedule = "*/15 * * * *"
	}
	if c.Backfill.Lookback == 0 {
		c.Backfill.Lookback = 24 * time.Hour
	}
	if c.Backfill.BatchSize == 0 {
		c.Backfill.BatchSize = 20
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Sprintf("database.url is required for driver %q", c.Database.Driver))
		}
	case DriverMySQL:
		if c.Database.URL == "" && c.Database.Name == "" {
			errs = append(errs, "database.url or database.name is required for driver \"mysql\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Completion.MaxTokens < 0 {
		errs = append(errs, "completion.max_tokens must not be negative")
	}
	if t := c.Completion.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Sprintf("completion.temperature %v must be between 0 and 2", *t))
	}
	if c.Completion.Timeout < 0 {
		errs = append(errs, "completion.timeout must not be negative")
	}
	if c.Backfill.BatchSize < 0 {
		errs = append(errs, "backfill.batch_size must not be negative")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CompletionEnabled reports whether a provider API key is configured.
func (c *Config) CompletionEnabled() bool {
	return c.Completion.APIKey != ""
}
