// Package config loads orchestrator settings from YAML files. It maps file
// values onto the orchestrator and executor option structs so deployments
// can tune budgets, timeouts and retry behavior without code changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reportmesh/executor"
	"github.com/hupe1980/reportmesh/logging"
	"github.com/hupe1980/reportmesh/orchestrator"
)

// Duration wraps time.Duration so YAML values can use human-readable forms
// like "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetryConfig tunes the per-unit retry policy.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Config is the root of a reportmesh configuration file.
type Config struct {
	ConcurrencyBudget int           `yaml:"concurrency_budget"`
	UnitTimeout       Duration      `yaml:"unit_timeout"`
	EventBufferSize   int           `yaml:"event_buffer_size"`
	Retry             RetryConfig   `yaml:"retry"`
	Logging           LoggingConfig `yaml:"logging"`
}

// Default returns the baseline configuration matching the orchestrator and
// executor defaults.
func Default() Config {
	retry := executor.DefaultRetryPolicy()
	return Config{
		ConcurrencyBudget: orchestrator.DefaultConfig.ConcurrencyBudget,
		UnitTimeout:       Duration(orchestrator.DefaultConfig.UnitTimeout),
		EventBufferSize:   orchestrator.DefaultConfig.EventBufferSize,
		Retry: RetryConfig{
			MaxAttempts:  retry.MaxAttempts,
			InitialDelay: Duration(retry.InitialDelay),
			MaxDelay:     Duration(retry.MaxDelay),
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads and parses the YAML file at path, applying defaults for
// unspecified fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the default configuration and validates the
// result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the orchestrator cannot run with.
func (c Config) Validate() error {
	if c.ConcurrencyBudget <= 0 {
		return fmt.Errorf("concurrency_budget must be positive, got %d", c.ConcurrencyBudget)
	}
	if c.UnitTimeout < 0 {
		return fmt.Errorf("unit_timeout must not be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// OrchestratorConfig maps onto the orchestrator's Config struct.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ConcurrencyBudget: c.ConcurrencyBudget,
		UnitTimeout:       c.UnitTimeout.Std(),
		EventBufferSize:   c.EventBufferSize,
	}
}

// RetryPolicy maps onto the executor's RetryPolicy.
func (c Config) RetryPolicy() executor.RetryPolicy {
	return executor.RetryPolicy{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay.Std(),
		MaxDelay:     c.Retry.MaxDelay.Std(),
	}
}

// Logger builds a structured logger from the logging section.
func (c Config) Logger() logging.Logger {
	level := logging.LogLevelInfo
	switch c.Logging.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewSlogLogger(level, c.Logging.Format, false)
}
