// Package config provides configuration management for Vali.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/vali/internal/fileutil"
)

const (
	configFileMode = 0o600
	configDirMode  = 0o750
)

// Config is the full configuration tree. The yaml tags name the keys in
// config.yaml, the json tags drive `vali config show -o json`.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Home      string          `yaml:"home" json:"home"`
	Portal    PortalConfig    `yaml:"portal" json:"portal"`
	Recaptcha RecaptchaConfig `yaml:"recaptcha" json:"recaptcha"`
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Checks    ChecksConfig    `yaml:"checks" json:"checks"`
	Services  []ServiceConfig `yaml:"services,omitempty" json:"services,omitempty"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PortalConfig defines how to reach the payment portal.
type PortalConfig struct {
	APIURL                string `yaml:"api_url" json:"api_url"`
	PageURL               string `yaml:"page_url" json:"page_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	RatePerSecond         int    `yaml:"rate_per_second" json:"rate_per_second"`
	RateBurst             int    `yaml:"rate_burst" json:"rate_burst"`
}

// RecaptchaConfig defines reCAPTCHA solving settings.
type RecaptchaConfig struct {
	SiteKey             string `yaml:"site_key,omitempty" json:"site_key,omitempty"`
	Action              string `yaml:"action" json:"action"`
	SolveTimeoutSeconds int    `yaml:"solve_timeout_seconds" json:"solve_timeout_seconds"`
	SettleSeconds       int    `yaml:"settle_seconds" json:"settle_seconds"`
}

// BrowserConfig defines browser automation settings.
type BrowserConfig struct {
	Headless   bool   `yaml:"headless" json:"headless"`
	ChromePath string `yaml:"chrome_path,omitempty" json:"chrome_path,omitempty"`
}

// ChecksConfig defines balance check behavior.
type ChecksConfig struct {
	MaxConcurrent         int `yaml:"max_concurrent" json:"max_concurrent"`
	CacheStalenessMinutes int `yaml:"cache_staleness_minutes" json:"cache_staleness_minutes"`
	Retries               int `yaml:"retries" json:"retries"`
}

// ServiceConfig defines a custom portal service beyond the built-in registry.
type ServiceConfig struct {
	Name      string `yaml:"name" json:"name"`
	ServiceID int    `yaml:"service_id" json:"service_id"`
	StepOrder int    `yaml:"step_order" json:"step_order"`
	Display   string `yaml:"display,omitempty" json:"display,omitempty"`
}

// SecurityConfig defines accounts book security settings.
type SecurityConfig struct {
	MemoryLock        bool `yaml:"memory_lock" json:"memory_lock"`
	SessionEnabled    bool `yaml:"session_enabled" json:"session_enabled"`
	SessionTTLMinutes int  `yaml:"session_ttl_minutes" json:"session_ttl_minutes"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format" json:"default_format"`
	Color         string `yaml:"color" json:"color"`
	Verbose       bool   `yaml:"verbose" json:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Load reads the config file at path on top of the defaults, so a partial
// file only overrides the keys it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config file path is from validated user input
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed. The write
// goes through a temp file so an interrupted save cannot truncate an
// existing config.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := fileutil.EnsureDir(filepath.Dir(path), configDirMode); err != nil {
		return fmt.Errorf("config directory: %w", err)
	}

	return fileutil.WriteAtomic(path, data, configFileMode)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// RequestTimeout returns the portal request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Portal.RequestTimeoutSeconds) * time.Second
}

// SolveTimeout returns the token solve timeout.
func (c *Config) SolveTimeout() time.Duration {
	return time.Duration(c.Recaptcha.SolveTimeoutSeconds) * time.Second
}

// SettleDelay returns how long to wait after page load before solving.
// An explicit settle_seconds of 0 disables the pause, reported as -1 so
// callers can tell it apart from "use the default".
func (c *Config) SettleDelay() time.Duration {
	if c.Recaptcha.SettleSeconds <= 0 {
		return -1
	}
	return time.Duration(c.Recaptcha.SettleSeconds) * time.Second
}

// CacheStaleness returns the result cache staleness duration.
func (c *Config) CacheStaleness() time.Duration {
	return time.Duration(c.Checks.CacheStalenessMinutes) * time.Minute
}

// SessionTTL returns how long an accounts unlock session stays valid.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.SessionTTLMinutes) * time.Minute
}

// DefaultHome returns the default vali home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vali"
	}
	return filepath.Join(home, ".vali")
}
