// Package config provides manifest loading and management for peaklabeler.
// It handles loading the manifest from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"peaklabeler/pkg/layers"
)

// ErrInvalid is returned by Validate for an unusable manifest.
var ErrInvalid = errors.New("invalid manifest")

// Config represents the labeling manifest loaded from YAML
type Config struct {
	// Containers lists the container files in the order their events are indexed.
	// A path listed twice is opened once.
	Containers []string `yaml:"containers"`

	// Seed initializes both generators before any sample is touched
	Seed int64 `yaml:"seed"`

	// FillValue replaces pixels the bad-pixel mask marks invalid
	FillValue float64 `yaml:"fillValue"`

	// Username is recorded in saved sessions
	Username string `yaml:"username"`

	// Labels overrides the default label registry when set
	Labels *layers.Model `yaml:"labels,omitempty"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn or error
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Seed = 0
	cfg.FillValue = 0
	cfg.Username = os.Getenv("USER")

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// LoadConfig loads the manifest from a YAML file.
// Unlike most settings files a manifest must exist: without containers there
// is nothing to label.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Relative container paths are resolved against the manifest directory
	dir := filepath.Dir(configPath)
	for i, p := range cfg.Containers {
		if p != "" && !filepath.IsAbs(p) {
			cfg.Containers[i] = filepath.Join(dir, p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the manifest names at least one container, that the
// label registry override is consistent and that the logging settings parse.
func (c *Config) Validate() error {
	if len(c.Containers) == 0 {
		return fmt.Errorf("%w: no containers listed", ErrInvalid)
	}
	for i, p := range c.Containers {
		if p == "" {
			return fmt.Errorf("%w: container %d has an empty path", ErrInvalid, i)
		}
	}
	if c.Labels != nil {
		if err := c.Labels.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// LayerModel returns a copy of the configured label registry, or the default
// registry when the manifest does not override it.
func (c *Config) LayerModel() *layers.Model {
	if c.Labels == nil {
		return layers.Default()
	}
	return c.Labels.Clone()
}

// LogLevel parses the configured log level. Empty means info.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Logging.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default manifest at the specified path,
// listing the given containers and spelling out the default label registry.
func CreateDefaultConfigFile(configPath string, containers ...string) error {
	cfg := DefaultConfig()
	cfg.Containers = containers
	cfg.Labels = layers.Default()
	return SaveConfig(cfg, configPath)
}
