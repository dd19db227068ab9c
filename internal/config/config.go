// Package config loads engine settings and the views manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings are the tunable knobs of the engine. Durations map to the
// time units of the synchronization protocol: the cache TTL, the editor
// debounce window, the settle delay after write-backs, and the grace
// countdown.
type Settings struct {
	VaultDir      string
	CacheTTL      time.Duration
	Debounce      time.Duration
	SettleDelay   time.Duration
	GraceTicks    int
	TickInterval  time.Duration
	DashboardPort int
	LogFile       string
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		VaultDir:      ".",
		CacheTTL:      10 * time.Second,
		Debounce:      500 * time.Millisecond,
		SettleDelay:   2 * time.Second,
		GraceTicks:    5,
		TickInterval:  time.Second,
		DashboardPort: 8991,
		LogFile:       "",
	}
}

// Load reads settings from the given config file, or from tasklens.yaml
// in the working directory when path is empty. Environment variables
// prefixed TASKLENS_ override file values; a missing config file is not
// an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault("vault_dir", defaults.VaultDir)
	v.SetDefault("cache_ttl", defaults.CacheTTL)
	v.SetDefault("debounce", defaults.Debounce)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("grace_ticks", defaults.GraceTicks)
	v.SetDefault("tick_interval", defaults.TickInterval)
	v.SetDefault("dashboard_port", defaults.DashboardPort)
	v.SetDefault("log_file", defaults.LogFile)

	v.SetEnvPrefix("TASKLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tasklens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return &Settings{
		VaultDir:      v.GetString("vault_dir"),
		CacheTTL:      v.GetDuration("cache_ttl"),
		Debounce:      v.GetDuration("debounce"),
		SettleDelay:   v.GetDuration("settle_delay"),
		GraceTicks:    v.GetInt("grace_ticks"),
		TickInterval:  v.GetDuration("tick_interval"),
		DashboardPort: v.GetInt("dashboard_port"),
		LogFile:       v.GetString("log_file"),
	}, nil
}

// ViewDef is one named query block in the views manifest.
type ViewDef struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// Manifest is the set of query blocks the serve command materializes.
type Manifest struct {
	Views []ViewDef `yaml:"views"`
}

// LoadManifest parses a views manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read views manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse views manifest %s: %w", path, err)
	}
	for i, def := range m.Views {
		if def.Name == "" {
			return nil, fmt.Errorf("views[%d] is missing a name", i)
		}
	}
	return &m, nil
}
