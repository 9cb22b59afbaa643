// Package config loads tool configuration from YAML files and environment
// variables. Environment variables take precedence over file values, and
// defaults fill anything left unset. Gate validation is delegated to
// gate.New so the rules live in one place.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/agentjido/confgate/pkg/gate"
	"github.com/agentjido/confgate/pkg/generation"
)

// Config holds the application configuration.
type Config struct {
	Gate      GateConfig      `yaml:"gate"`
	Selection SelectionConfig `yaml:"selection"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`

	// ConfigDir is where relative defaults (telemetry, archive) resolve.
	ConfigDir string `yaml:"-"`
}

// GateConfig mirrors gate.New's parameters. A zero threshold is treated as
// unset and replaced by the default.
type GateConfig struct {
	HighThreshold float64 `yaml:"high_threshold"`
	LowThreshold  float64 `yaml:"low_threshold"`
	MediumAction  string  `yaml:"medium_action"`
	LowAction     string  `yaml:"low_action"`
	EmitTelemetry *bool   `yaml:"emit_telemetry,omitempty"`
}

// SelectionConfig picks the default candidate selection strategy.
type SelectionConfig struct {
	Strategy string `yaml:"strategy"`
}

// TelemetryConfig controls the JSONL event sink.
type TelemetryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path"`
}

// ArchiveConfig locates the decision archive and its history index.
type ArchiveConfig struct {
	Dir   string `yaml:"dir"`
	Index string `yaml:"index"`
}

// LoggingConfig sets the slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads ~/.confgate/config.yaml when present, then applies environment
// overrides and defaults. A missing or unreadable default file is not an
// error.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	cfg := loadFileConfig(filepath.Join(configDir, "config.yaml"))
	cfg.ConfigDir = configDir

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads configuration from an explicit path. Unlike Load, a missing
// or malformed file is an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ConfigDir = filepath.Dir(path)

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// NewGate constructs the configured gate. Extra options (telemetry sinks in
// particular) are applied after the configured ones so callers can override.
func (c *Config) NewGate(extra ...gate.Option) (*gate.Gate, error) {
	mediumAction, err := gate.ParseAction(c.Gate.MediumAction)
	if err != nil {
		return nil, fmt.Errorf("gate.medium_action: %w", err)
	}
	lowAction, err := gate.ParseAction(c.Gate.LowAction)
	if err != nil {
		return nil, fmt.Errorf("gate.low_action: %w", err)
	}

	opts := []gate.Option{
		gate.WithMediumAction(mediumAction),
		gate.WithLowAction(lowAction),
	}
	if c.Gate.EmitTelemetry != nil && !*c.Gate.EmitTelemetry {
		opts = append(opts, gate.WithoutTelemetry())
	}
	opts = append(opts, extra...)

	return gate.New(c.Gate.HighThreshold, c.Gate.LowThreshold, opts...)
}

// Strategy returns the validated selection strategy.
func (c *Config) Strategy() (generation.Strategy, error) {
	s, err := generation.ParseStrategy(c.Selection.Strategy)
	if err != nil {
		return "", fmt.Errorf("selection.strategy: %w", err)
	}
	return s, nil
}

// IndexPath resolves the archive's SQLite index file.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Archive.Dir, c.Archive.Index)
}

// TelemetryEnabled reports whether the JSONL sink should be wired up.
func (c *Config) TelemetryEnabled() bool {
	return c.Telemetry.Enabled == nil || *c.Telemetry.Enabled
}

// loadFileConfig reads the default config file, returning an empty config if
// missing or unparseable.
func loadFileConfig(path string) *Config {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, cfg)
	return cfg
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CONFGATE_HIGH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONFGATE_HIGH_THRESHOLD: %w", err)
		}
		c.Gate.HighThreshold = f
	}
	if v := os.Getenv("CONFGATE_LOW_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONFGATE_LOW_THRESHOLD: %w", err)
		}
		c.Gate.LowThreshold = f
	}
	if v := os.Getenv("CONFGATE_MEDIUM_ACTION"); v != "" {
		c.Gate.MediumAction = v
	}
	if v := os.Getenv("CONFGATE_LOW_ACTION"); v != "" {
		c.Gate.LowAction = v
	}
	if v := os.Getenv("CONFGATE_ARCHIVE_DIR"); v != "" {
		c.Archive.Dir = v
	}
	if v := os.Getenv("CONFGATE_TELEMETRY_PATH"); v != "" {
		c.Telemetry.Path = v
	}
	if v := os.Getenv("CONFGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Gate.HighThreshold == 0 {
		c.Gate.HighThreshold = 0.7
	}
	if c.Gate.LowThreshold == 0 {
		c.Gate.LowThreshold = 0.4
	}
	if c.Gate.MediumAction == "" {
		c.Gate.MediumAction = string(gate.ActionWithVerification)
	}
	if c.Gate.LowAction == "" {
		c.Gate.LowAction = string(gate.ActionAbstain)
	}
	if c.Gate.EmitTelemetry == nil {
		enabled := true
		c.Gate.EmitTelemetry = &enabled
	}
	if c.Selection.Strategy == "" {
		c.Selection.Strategy = string(generation.StrategyBest)
	}
	if c.Telemetry.Enabled == nil {
		enabled := true
		c.Telemetry.Enabled = &enabled
	}
	if c.Telemetry.Path == "" {
		c.Telemetry.Path = filepath.Join(c.ConfigDir, "telemetry.jsonl")
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = filepath.Join(c.ConfigDir, "archive")
	}
	if c.Archive.Index == "" {
		c.Archive.Index = "index.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".confgate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
