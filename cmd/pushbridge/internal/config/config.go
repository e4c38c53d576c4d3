// Package config loads the pushbridge CLI configuration.
//
// Values come from an optional pushbridge.yaml, then PUSHBRIDGE_*
// environment variables, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by Load.
const FileName = "pushbridge.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUSHBRIDGE_"

// Defaults.
const (
	DefaultDisplayTimeout = 25 * time.Second
	DefaultDisplayHistory = 256
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultNATSPrefix     = "pushbridge"
	DefaultNATSTimeout    = 5 * time.Second
	DefaultWrapperType    = "cordova"
	DefaultWrapperVersion = "5.2.0"
)

// Config represents pushbridge.yaml.
type Config struct {
	Display DisplayConfig `yaml:"display" envPrefix:"DISPLAY_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	NATS    NATSConfig    `yaml:"nats" envPrefix:"NATS_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	SDK     SDKConfig     `yaml:"sdk" envPrefix:"SDK_"`
}

// DisplayConfig bounds how long a script may hold a notification.
type DisplayConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	History int           `yaml:"history,omitempty" env:"HISTORY"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" env:"LEVEL"`
	Format string `yaml:"format,omitempty" env:"FORMAT"`
}

// NATSConfig locates the native SDK host.
type NATSConfig struct {
	URL     string        `yaml:"url,omitempty" env:"URL"`
	Prefix  string        `yaml:"prefix,omitempty" env:"PREFIX"`
	Timeout time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// MetricsConfig controls the debug HTTP endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" env:"ADDR"`
}

// SDKConfig carries the wrapper type and version reported to the native SDK.
type SDKConfig struct {
	WrapperType      string `yaml:"wrapper_type,omitempty" env:"WRAPPER_TYPE"`
	WrapperVersion   string `yaml:"wrapper_version,omitempty" env:"WRAPPER_VERSION"`
	MinNativeVersion string `yaml:"min_native_version,omitempty" env:"MIN_NATIVE_VERSION"`
}

// LoadOptional reads the file at path if present.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

// Load reads pushbridge.yaml from dir (if present), applies environment
// overrides from the process environment, fills defaults and validates.
func Load(dir string) (*Config, error) {
	return LoadFrom(filepath.Join(dir, FileName), nil)
}

// LoadFrom is Load with an explicit file path and environment. A nil
// environ means the process environment.
func LoadFrom(path string, environ map[string]string) (*Config, error) {
	cfg, err := LoadOptional(path)
	if err != nil {
		return nil, err
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Display.Timeout == 0 {
		c.Display.Timeout = DefaultDisplayTimeout
	}
	if c.Display.History == 0 {
		c.Display.History = DefaultDisplayHistory
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if strings.TrimSpace(c.NATS.URL) == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if strings.TrimSpace(c.NATS.Prefix) == "" {
		c.NATS.Prefix = DefaultNATSPrefix
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = DefaultNATSTimeout
	}
	if strings.TrimSpace(c.SDK.WrapperType) == "" {
		c.SDK.WrapperType = DefaultWrapperType
	}
	if strings.TrimSpace(c.SDK.WrapperVersion) == "" {
		c.SDK.WrapperVersion = DefaultWrapperVersion
	}
}

// Validate checks a defaulted configuration.
func (c *Config) Validate() error {
	if c.Display.Timeout <= 0 {
		return fmt.Errorf("display.timeout must be positive (got %s)", c.Display.Timeout)
	}
	if c.Display.History < 0 {
		return fmt.Errorf("display.history cannot be negative (got %d)", c.Display.History)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	if c.NATS.Timeout <= 0 {
		return fmt.Errorf("nats.timeout must be positive (got %s)", c.NATS.Timeout)
	}
	if strings.ContainsAny(c.NATS.Prefix, " *>") || strings.HasSuffix(c.NATS.Prefix, ".") {
		return fmt.Errorf("nats.prefix is not a valid subject prefix (%q)", c.NATS.Prefix)
	}

	wrapper := canonicalVersion(c.SDK.WrapperVersion)
	if !semver.IsValid(wrapper) {
		return fmt.Errorf("sdk.wrapper_version is not a semantic version (%q)", c.SDK.WrapperVersion)
	}
	if c.SDK.MinNativeVersion != "" {
		min := canonicalVersion(c.SDK.MinNativeVersion)
		if !semver.IsValid(min) {
			return fmt.Errorf("sdk.min_native_version is not a semantic version (%q)", c.SDK.MinNativeVersion)
		}
		if semver.Compare(wrapper, min) < 0 {
			return fmt.Errorf("sdk.wrapper_version %s is older than sdk.min_native_version %s",
				c.SDK.WrapperVersion, c.SDK.MinNativeVersion)
		}
	}
	return nil
}

// canonicalVersion adds the "v" prefix semver expects.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
