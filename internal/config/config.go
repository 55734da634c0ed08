// Package config loads the YAML configuration for a note collection.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-collection config file looked up in the
// vault root.
const ConfigFileName = ".lls.yaml"

// Config is the complete configuration.
type Config struct {
	// VaultPath is the root of the note collection.
	VaultPath string `yaml:"vault_path"`
	// DataDir is where snapshots and logs live. Default: <vault>/.lls
	DataDir string       `yaml:"data_dir"`
	Search  SearchConfig `yaml:"search"`
	Index   IndexConfig  `yaml:"index"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// SearchConfig configures query execution defaults.
type SearchConfig struct {
	// Limit is the default maximum result count.
	Limit int `yaml:"limit"`
	// ExcerptLength is the excerpt size in runes.
	ExcerptLength int `yaml:"excerpt_length"`
	// Fuzzy enables engine-native edit-distance tolerance.
	Fuzzy bool `yaml:"fuzzy"`
	// CaseSensitive makes phrase/term containment exact-case.
	CaseSensitive bool `yaml:"case_sensitive"`
}

// IndexConfig configures the incremental update pipeline.
type IndexConfig struct {
	// DebounceWindow is the delay after the last file event before a
	// pending batch is flushed (e.g. "500ms").
	DebounceWindow string `yaml:"debounce_window"`
	// PersistDelay coalesces index mutations into one snapshot write
	// (e.g. "30s").
	PersistDelay string `yaml:"persist_delay"`
	// StalenessFraction is the minimum cached/live document ratio
	// below which a snapshot is discarded on load.
	StalenessFraction float64 `yaml:"staleness_fraction"`
	// Persist gates snapshot writes entirely.
	Persist bool `yaml:"persist"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Search: SearchConfig{
			Limit:         10,
			ExcerptLength: 200,
			Fuzzy:         true,
		},
		Index: IndexConfig{
			DebounceWindow:    "500ms",
			PersistDelay:      "30s",
			StalenessFraction: 0.8,
			Persist:           true,
		},
		LogLevel: "info",
	}
}

// Load reads the config for a vault, falling back to defaults when the
// file is absent. Present-but-invalid config is an error.
func Load(vaultPath string) (Config, error) {
	cfg := Default()
	cfg.VaultPath = vaultPath

	data, err := os.ReadFile(filepath.Join(vaultPath, ConfigFileName))
	if os.IsNotExist(err) {
		return cfg.withDefaults(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.VaultPath = vaultPath
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.VaultPath, ".lls")
	}
	if c.Search.Limit == 0 {
		c.Search.Limit = def.Search.Limit
	}
	if c.Search.ExcerptLength == 0 {
		c.Search.ExcerptLength = def.Search.ExcerptLength
	}
	if c.Index.DebounceWindow == "" {
		c.Index.DebounceWindow = def.Index.DebounceWindow
	}
	if c.Index.PersistDelay == "" {
		c.Index.PersistDelay = def.Index.PersistDelay
	}
	if c.Index.StalenessFraction == 0 {
		c.Index.StalenessFraction = def.Index.StalenessFraction
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	return c
}

// Validate checks value ranges and duration syntax.
func (c Config) Validate() error {
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must not be negative")
	}
	if c.Search.ExcerptLength < 0 {
		return fmt.Errorf("search.excerpt_length must not be negative")
	}
	if c.Index.StalenessFraction < 0 || c.Index.StalenessFraction > 1 {
		return fmt.Errorf("index.staleness_fraction must be within [0, 1]")
	}
	if _, err := time.ParseDuration(c.Index.DebounceWindow); err != nil {
		return fmt.Errorf("index.debounce_window: %w", err)
	}
	if _, err := time.ParseDuration(c.Index.PersistDelay); err != nil {
		return fmt.Errorf("index.persist_delay: %w", err)
	}
	return nil
}

// DebounceWindow returns the parsed debounce window.
func (c Config) DebounceWindow() time.Duration {
	d, _ := time.ParseDuration(c.Index.DebounceWindow)
	return d
}

// PersistDelay returns the parsed persist delay.
func (c Config) PersistDelay() time.Duration {
	d, _ := time.ParseDuration(c.Index.PersistDelay)
	return d
}
