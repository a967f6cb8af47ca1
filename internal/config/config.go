// Package config loads treemirror configuration from file and
// environment via viper.
//
// Configuration is read from treemirror.yaml (working directory or
// ~/.config/treemirror) and overridden by TREEMIRROR_* environment
// variables, e.g. TREEMIRROR_API_TOKEN. Registered hierarchy roots
// live here too: the engine is hierarchy-agnostic and never embeds
// root identifiers.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved treemirror configuration.
type Config struct {
	API struct {
		// BaseURL overrides the provider endpoint. Empty selects the
		// real Drive API; tests point this at a local server.
		BaseURL string `mapstructure:"base_url"`
		// Token is the bearer token for the provider. Acquiring it is
		// out of scope; treemirror only carries it.
		Token string `mapstructure:"token"`
	} `mapstructure:"api"`

	DB struct {
		// Path is the sqlite file holding the mirror table.
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Sync struct {
		BatchSize   int           `mapstructure:"batch_size"`
		MaxDepth    int           `mapstructure:"max_depth"`
		Concurrency int           `mapstructure:"concurrency"`
		Interval    time.Duration `mapstructure:"interval"`
	} `mapstructure:"sync"`

	Log struct {
		// File enables rotated file logging when set; empty logs to
		// stderr only.
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"log"`

	// Roots maps a friendly hierarchy name to its remote folder id.
	Roots map[string]string `mapstructure:"roots"`
}

// Load reads configuration from the given file, or from the default
// search paths when path is empty. A missing config file is fine as
// long as the environment supplies what a command needs.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db.path", ".treemirror/mirror.db")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.max_depth", 10)
	v.SetDefault("sync.concurrency", 2)
	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("treemirror")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/treemirror")
	}

	v.SetEnvPrefix("TREEMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// RequireAPI checks the fields a remote-touching command needs.
// Configuration errors are fatal before any I/O is attempted.
func (c *Config) RequireAPI() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (set TREEMIRROR_API_TOKEN)")
	}
	return nil
}

// ResolveRoot maps a friendly root name to its remote id. An argument
// that isn't a registered name is taken as a raw remote id.
func (c *Config) ResolveRoot(nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("root is required")
	}
	if id, ok := c.Roots[nameOrID]; ok {
		return id, nil
	}
	return nameOrID, nil
}

// RootIDs returns the remote ids of all registered roots, sorted by
// their friendly name for stable ordering.
func (c *Config) RootIDs() []string {
	names := make([]string, 0, len(c.Roots))
	for name := range c.Roots {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make([]string, 0, len(names))
	for _, name := range names {
		ids = append(ids, c.Roots[name])
	}
	return ids
}
