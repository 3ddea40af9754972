// Package config loads lockscan settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds process-wide settings.
type Config struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text" yaml:"log_format"`
	Jobs         int    `env:"JOBS" envDefault:"4" yaml:"jobs"`
	Mode         string `env:"MODE" envDefault:"strict" yaml:"mode"`
	PipIndexURL  string `env:"PIP_INDEX_URL" envDefault:"https://pypi.org/simple/" yaml:"pip_index_url"`
	YarnRegistry string `env:"YARN_REGISTRY" envDefault:"https://registry.yarnpkg.com" yaml:"yarn_registry"`
	RequestFile  string `env:"REQUEST_FILE" envDefault:"lockscan.yaml" yaml:"request_file"`
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LOCKSCAN_"

// Load reads the environment, then overlays the YAML file at path. An empty
// path means DefaultPath(); a missing default file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // config path chosen by the user
		switch {
		case err == nil:
			if err := overlay(&cfg, data); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/lockscan/config.yaml, falling back to
// the user config dir.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "lockscan", "config.yaml")
}

func overlay(cfg *Config, data []byte) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	setIf(&cfg.LogLevel, file.LogLevel)
	setIf(&cfg.LogFormat, file.LogFormat)
	setIf(&cfg.Mode, file.Mode)
	setIf(&cfg.PipIndexURL, file.PipIndexURL)
	setIf(&cfg.YarnRegistry, file.YarnRegistry)
	setIf(&cfg.RequestFile, file.RequestFile)
	if file.Jobs != 0 {
		cfg.Jobs = file.Jobs
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Jobs < 1 {
		return fmt.Errorf("config: jobs must be >= 1 (got %d)", c.Jobs)
	}
	switch c.Mode {
	case "strict", "permissive":
	default:
		return fmt.Errorf("config: unknown mode %q (must be strict or permissive)", c.Mode)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q (must be text or json)", c.LogFormat)
	}
	return nil
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return lvl, nil
}
