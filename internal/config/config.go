// Package config loads tapline's configuration: embedded defaults,
// overlaid by an optional TOML file, overlaid by TAPLINE_* environment
// variables. Paths default into the XDG base directories.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed defaults.toml
var defaultsTOML []byte

// Config is the resolved configuration.
type Config struct {
	// Root is the installation root holding the cellar, prefix, cache,
	// and index. Empty means <XDG_DATA_HOME>/tapline.
	Root string `koanf:"root"`

	// Taps lists tap manifest files or directories the catalog loads,
	// in declaration order. Empty means <XDG_CONFIG_HOME>/tapline/taps.
	Taps []string `koanf:"taps"`

	// Aliases maps user-defined names to formula names. They apply
	// before catalog lookup, so an alias can shadow a tap formula.
	Aliases map[string]string `koanf:"aliases"`

	Fetch FetchConfig `koanf:"fetch"`
}

// FetchConfig bounds download behavior.
type FetchConfig struct {
	// Workers caps concurrent bottle prefetches.
	Workers int `koanf:"workers"`
}

// DefaultPath returns the config file location used when --config is not
// given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "tapline", "config.toml")
}

// Load builds the configuration. An empty path reads DefaultPath if it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsTOML), toml.Parser()); err != nil {
		return nil, fmt.Errorf("loading built-in defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("TAPLINE_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyFallbacks()
	return &cfg, nil
}

// envKey maps TAPLINE_FETCH_WORKERS to fetch.workers. Config keys avoid
// underscores so the mapping stays unambiguous.
func envKey(key string) string {
	key = strings.TrimPrefix(key, "TAPLINE_")
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

func (c *Config) applyFallbacks() {
	if c.Root == "" {
		c.Root = filepath.Join(xdg.DataHome, "tapline")
	}
	if len(c.Taps) == 0 {
		c.Taps = []string{filepath.Join(xdg.ConfigHome, "tapline", "taps")}
	}
	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = 4
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
}

// Canonical applies user aliases to a requested name. Unaliased names
// pass through.
func (c *Config) Canonical(name string) string {
	if target, ok := c.Aliases[name]; ok && target != "" {
		return target
	}
	return name
}
