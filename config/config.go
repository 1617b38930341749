// Package config loads and validates acarsplit runtime configuration.
//
// Configuration is a single JSON document. Ports are the only required
// setting; everything else has a sensible default. Environment variables
// prefixed with ACARSPLIT_ override file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360/acarsplit/errors"
)

// Split strategy constants
const (
	SplitByLabel   = "label"   // Two-character ACARS label (default)
	SplitByTail    = "tail"    // Aircraft registration from AES/GES header
	SplitByType    = "type"    // Application type (CPDLC, ADS-C, MIAM, OTHER)
	SplitByKeyword = "keyword" // Case-insensitive substring match
)

// Defaults applied when the config file omits a field.
const (
	DefaultHost           = "127.0.0.1"
	DefaultOutputDir      = "output"
	DefaultBufferTimeout  = 60 * time.Second
	DefaultMaxBufferBytes = 1 << 20 // 1 MiB cap before a delimiter-free buffer is reset
)

// Config represents the complete application configuration.
type Config struct {
	Host           string        `json:"host"`
	Ports          []int         `json:"ports"`
	OutputDir      string        `json:"output_dir"`
	BufferTimeout  time.Duration `json:"buffer_timeout"` // seconds in JSON
	SplitBy        string        `json:"split_by"`
	Keyword        string        `json:"keyword,omitempty"`
	MaxBufferBytes int           `json:"max_buffer_bytes,omitempty"`
	MetricsPort    int           `json:"metrics_port,omitempty"` // 0 disables the metrics server
}

// UnmarshalJSON implements custom JSON unmarshaling for Config.
// buffer_timeout accepts either a number of seconds or a duration string.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		BufferTimeout any `json:"buffer_timeout"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch v := aux.BufferTimeout.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("buffer_timeout: %w", err)
		}
		c.BufferTimeout = d
	case float64:
		c.BufferTimeout = time.Duration(v * float64(time.Second))
	case nil:
		// default applied by Loader
	}

	return nil
}

// MarshalJSON renders buffer_timeout as seconds for symmetry with UnmarshalJSON.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		BufferTimeout float64 `json:"buffer_timeout"`
		*Alias
	}{
		BufferTimeout: c.BufferTimeout.Seconds(),
		Alias:         (*Alias)(c),
	})
}

// Validate checks if the config is valid. A config with no ports is a fatal
// misconfiguration; there is nothing to listen on.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return errors.WrapFatal(errors.ErrNoPorts, "Config", "Validate",
			"at least one UDP port is required")
	}

	seen := make(map[int]bool, len(c.Ports))
	for _, port := range c.Ports {
		if port < 1 || port > 65535 {
			return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("port %d out of range 1-65535", port))
		}
		if seen[port] {
			return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("port %d listed more than once", port))
		}
		seen[port] = true
	}

	if c.BufferTimeout <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_timeout must be positive")
	}

	if c.MaxBufferBytes < 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate",
			"max_buffer_bytes cannot be negative")
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics_port %d out of range", c.MetricsPort))
	}

	return nil
}

// Normalize repairs recoverable misconfiguration and returns a human-readable
// warning per repair. An unknown split_by, or split_by=keyword without a
// keyword, falls back to the label strategy rather than refusing to start.
func (c *Config) Normalize() []string {
	var warnings []string

	switch c.SplitBy {
	case SplitByLabel, SplitByTail, SplitByType:
	case SplitByKeyword:
		if strings.TrimSpace(c.Keyword) == "" {
			warnings = append(warnings,
				"split_by=keyword requires a keyword; falling back to label")
			c.SplitBy = SplitByLabel
		}
	case "":
		c.SplitBy = SplitByLabel
	default:
		warnings = append(warnings,
			fmt.Sprintf("unknown split_by %q; falling back to label", c.SplitBy))
		c.SplitBy = SplitByLabel
	}

	if c.SplitBy != SplitByKeyword && c.Keyword != "" {
		warnings = append(warnings,
			fmt.Sprintf("keyword %q ignored for split_by=%s", c.Keyword, c.SplitBy))
		c.Keyword = ""
	}

	return warnings
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	copied := *c
	copied.Ports = append([]int(nil), c.Ports...)
	return &copied
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Loader handles configuration loading with defaults and env overrides.
type Loader struct {
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "ACARSPLIT",
	}
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single JSON file, applies defaults and
// environment overrides, and validates the result.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "LoadFile",
			fmt.Sprintf("failed to read %s", path))
	}

	cfg := l.getDefaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "LoadFile",
			fmt.Sprintf("failed to parse %s", path))
	}

	l.applyDefaults(cfg)
	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getDefaults returns default configuration.
func (l *Loader) getDefaults() *Config {
	return &Config{
		Host:           DefaultHost,
		OutputDir:      DefaultOutputDir,
		BufferTimeout:  DefaultBufferTimeout,
		SplitBy:        SplitByLabel,
		MaxBufferBytes: DefaultMaxBufferBytes,
	}
}

// applyDefaults restores defaults for fields an explicit file value zeroed out.
func (l *Loader) applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.BufferTimeout == 0 {
		cfg.BufferTimeout = DefaultBufferTimeout
	}
	if cfg.MaxBufferBytes == 0 {
		cfg.MaxBufferBytes = DefaultMaxBufferBytes
	}
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_HOST"); val != "" {
		cfg.Host = val
	}
	if val := os.Getenv(l.envPrefix + "_PORTS"); val != "" {
		if ports, err := parsePortList(val); err == nil {
			cfg.Ports = ports
		}
	}
	if val := os.Getenv(l.envPrefix + "_OUTPUT_DIR"); val != "" {
		cfg.OutputDir = val
	}
	if val := os.Getenv(l.envPrefix + "_BUFFER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.BufferTimeout = d
		}
	}
	if val := os.Getenv(l.envPrefix + "_SPLIT_BY"); val != "" {
		cfg.SplitBy = val
	}
	if val := os.Getenv(l.envPrefix + "_KEYWORD"); val != "" {
		cfg.Keyword = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.MetricsPort = port
		}
	}
}

// parsePortList parses a comma-separated port list (e.g. "5571,5572").
func parsePortList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		port, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", part, err)
		}
		ports = append(ports, port)
	}
	return ports, nil
}
