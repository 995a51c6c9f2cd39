// Package config reads and writes the ccmeter TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/ccmeter/internal/pricing"
)

// Config holds all ccmeter configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Blocks  BlocksConfig  `toml:"blocks"`
	Pricing PricingConfig `toml:"pricing"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DataDir  string `toml:"data_dir,omitempty"`
	Timezone string `toml:"timezone,omitempty"`
	CostMode string `toml:"cost_mode"`
	Days     int    `toml:"default_days"`
}

// BlocksConfig holds billing block settings.
type BlocksConfig struct {
	DurationHours float64  `toml:"duration_hours"`
	TokenLimit    int64    `toml:"token_limit,omitempty"`
	CostLimit     *float64 `toml:"cost_limit,omitempty"`
	WarnFraction  float64  `toml:"warn_fraction"`
}

// PricingConfig holds pricing table settings.
type PricingConfig struct {
	Offline    bool                            `toml:"offline"`
	TTLMinutes int                             `toml:"ttl_minutes"`
	Overrides  map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model rate overrides, in USD per
// million tokens as users think of them.
type ModelPricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			CostMode: "auto",
			Days:     30,
		},
		Blocks: BlocksConfig{
			DurationHours: 5,
			WarnFraction:  0.8,
		},
		Pricing: PricingConfig{
			TTLMinutes: 60,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ccmeter")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// CacheDir returns the XDG-compliant cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "ccmeter")
}

// CachePath returns the full path to the parse cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "entries.db")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// BlockDuration returns the configured block duration.
func (c Config) BlockDuration() time.Duration {
	if c.Blocks.DurationHours <= 0 {
		return 5 * time.Hour
	}
	return time.Duration(c.Blocks.DurationHours * float64(time.Hour))
}

// PricingTTL returns the configured remote pricing TTL.
func (c Config) PricingTTL() time.Duration {
	if c.Pricing.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Pricing.TTLMinutes) * time.Minute
}

// Location resolves the configured timezone, defaulting to the system
// local zone.
func (c Config) Location() (*time.Location, error) {
	if c.General.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.General.Timezone, err)
	}
	return loc, nil
}

// OverrideTable converts the config's per-MTok overrides into a pricing
// table with per-token rates.
func (c Config) OverrideTable() pricing.Table {
	if len(c.Pricing.Overrides) == 0 {
		return nil
	}
	table := make(pricing.Table, len(c.Pricing.Overrides))
	for name, o := range c.Pricing.Overrides {
		var p pricing.ModelPricing
		if o.InputPerMTok != nil {
			p.InputCostPerToken = *o.InputPerMTok / 1e6
		}
		if o.OutputPerMTok != nil {
			p.OutputCostPerToken = *o.OutputPerMTok / 1e6
		}
		if o.CacheWritePerMTok != nil {
			p.CacheCreationCostPerToken = *o.CacheWritePerMTok / 1e6
		}
		if o.CacheReadPerMTok != nil {
			p.CacheReadCostPerToken = *o.CacheReadPerMTok / 1e6
		}
		table[pricing.Normalize(name)] = p
	}
	return table
}
