// Package config loads the optional TOML configuration file. Everything in
// it has a sensible default; command-line flags always win over config keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Layer    string   `koanf:"layer"`     // "overlay", "top", "bottom", or "background"
	Output   string   `koanf:"output"`    // connector name to pin the surface to; empty lets the compositor pick
	LogLevel string   `koanf:"log_level"` // "debug", "info", "warn", "error"
	Opacity  *float64 `koanf:"opacity"`   // default opacity when neither flag nor cache supplies one
}

func Load() (*Config, error) {
	return loadFrom(configPaths())
}

func loadFrom(paths []string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Layer:    "overlay",
		LogLevel: "warn",
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Opacity != nil && (*cfg.Opacity < 0 || *cfg.Opacity > 1) {
		return nil, fmt.Errorf("config opacity %g is outside 0.0..1.0", *cfg.Opacity)
	}

	return cfg, nil
}

func configPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/rcrosshair/config.toml
		filepath.Join(xdg.ConfigHome, "rcrosshair", "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}
