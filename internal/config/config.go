// Package config handles alphaprobe configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel      string              `yaml:"log_level"` // debug | info | warn | error
	Browser       BrowserConfig       `yaml:"browser"`
	Tabs          []string            `yaml:"tabs"` // pages opened at start
	API           APIConfig           `yaml:"api"`
	Probe         ProbeConfig         `yaml:"probe"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote             string        `yaml:"remote"`
	Stealth            string        `yaml:"stealth"` // headless | headful
	XvfbDisplay        string        `yaml:"xvfb_display"`
	ResourceBlocking   []string      `yaml:"resource_blocking"`
	AutoDismissDialogs *bool         `yaml:"auto_dismiss_dialogs"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout"`
}

// APIConfig controls the local control API. Empty Addr disables it.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// ProbeConfig tunes the transparency probe.
type ProbeConfig struct {
	ReportErrors  bool  `yaml:"report_errors"`
	MaxImageBytes int64 `yaml:"max_image_bytes"`
	MaxPixels     int64 `yaml:"max_pixels"`
}

// ObservabilityConfig controls the metrics store. Empty DB disables it.
type ObservabilityConfig struct {
	DB            string        `yaml:"db"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	RetentionDays int           `yaml:"retention_days"`
	// BusyTimeout is how long a metrics write waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.AutoDismissDialogs == nil {
		v := c.Browser.Stealth == "headless"
		c.Browser.AutoDismissDialogs = &v
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Probe.MaxImageBytes <= 0 {
		c.Probe.MaxImageBytes = 64 << 20
	}
	if c.Probe.MaxPixels <= 0 {
		c.Probe.MaxPixels = 100_000_000
	}
	if c.Observability.FlushInterval <= 0 {
		c.Observability.FlushInterval = 5 * time.Second
	}
	if c.Observability.RetentionDays <= 0 {
		c.Observability.RetentionDays = 30
	}
	if c.Observability.BusyTimeout <= 0 {
		c.Observability.BusyTimeout = 5 * time.Second
	}
}

// Validate rejects settings the checker cannot run with.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: unknown browser.stealth %q", c.Browser.Stealth)
	}
	for _, t := range c.Browser.ResourceBlocking {
		if strings.EqualFold(t, "images") || strings.EqualFold(t, "image") {
			return fmt.Errorf("config: browser.resource_blocking cannot block images")
		}
	}
	return nil
}
