// Package config loads the optional desktop-indexer configuration file.
// Built-in defaults apply when the file is absent; CLI flags override both.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/xdg"
)

// FileName is the config file name under the XDG config dir.
const FileName = "config.yaml"

// Config is the desktop-indexer configuration.
type Config struct {
	// Paths are extra scan roots appended after the XDG-derived list.
	Paths []string `yaml:"paths"`

	// Search tunes query defaults.
	Search SearchConfig `yaml:"search"`

	// RespectTryExec excludes entries whose TryExec does not resolve.
	RespectTryExec bool `yaml:"respect_try_exec"`

	// Log configures daemon logging.
	Log LogConfig `yaml:"log"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	// Limit is the default maximum number of results.
	Limit int `yaml:"limit"`
	// EmptyMode is the default empty-query ordering: recency or frequency.
	EmptyMode string `yaml:"empty_mode"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Search: SearchConfig{
			Limit:     20,
			EmptyMode: "recency",
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/desktop-indexer/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), FileName)
}

// Load reads the config file at path, layering it over the defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, ierr.Wrap(ierr.KindIO, "read config", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), ierr.Wrap(ierr.KindInvalidArgument, "parse "+path, err)
	}
	if cfg.Search.Limit <= 0 {
		cfg.Search.Limit = 20
	}
	if cfg.Search.EmptyMode == "" {
		cfg.Search.EmptyMode = "recency"
	}
	return cfg, nil
}
