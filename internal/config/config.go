// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for pagemark.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.pagemark/config.toml
//   - ~/.pagemark/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete pagemark configuration.
type Config struct {
	// DefaultModel is the model used when no per-document or global
	// preference names one.
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Backend configuration
	Backend BackendConfig `toml:"backend" json:"backend"`

	// History configuration
	History HistoryConfig `toml:"history" json:"history"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// BackendConfig contains text-generation service configuration.
type BackendConfig struct {
	// Endpoint is the generation service base URL
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// APIKey is the bearer credential, empty when the service is open
	APIKey string `toml:"api_key" json:"api_key"`
	// TimeoutSecs is the timeout for non-streaming requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RequestsPerSecond caps outbound completion requests
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// HistoryConfig contains conversation history configuration.
type HistoryConfig struct {
	// PersistLimit is the maximum messages kept per conversation
	PersistLimit int `toml:"persist_limit" json:"persist_limit"`
	// WindowSize is the number of prior turns sent with each request
	WindowSize int `toml:"window_size" json:"window_size"`
}

// UIConfig contains refresh behavior configuration.
type UIConfig struct {
	// RefreshWindowMs is the coalescing window for streaming repaints
	RefreshWindowMs int `toml:"refresh_window_ms" json:"refresh_window_ms"`
}

// StorageConfig contains message store configuration.
type StorageConfig struct {
	// Path is the SQLite database file (empty = ~/.pagemark/messages.db)
	Path string `toml:"path" json:"path"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level"`
	// Path is the log file (empty = ~/.pagemark/pagemark.log)
	Path string `toml:"path" json:"path"`
	// MaxSizeMB is the size at which the log file rotates
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `toml:"max_backups" json:"max_backups"`
	// MaxAgeDays is the retention for rotated files
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days"`
	// Console mirrors log output to stderr
	Console bool `toml:"console" json:"console"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with built-in defaults.
func Default() *Config {
	return &Config{
		DefaultModel: "gpt-5-mini",
		Backend: BackendConfig{
			Endpoint:          "http://127.0.0.1:8080",
			TimeoutSecs:       30,
			RequestsPerSecond: 2,
		},
		History: HistoryConfig{
			PersistLimit: 100,
			WindowSize:   20,
		},
		UI: UIConfig{
			RefreshWindowMs: 50,
		},
		Storage: StorageConfig{},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

// ConfigDir returns the pagemark configuration directory (~/.pagemark).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".pagemark"), nil
}

// ConfigPathTOML returns the path of the TOML configuration file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path of the JSON configuration file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load loads the configuration from the standard locations.
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				cfg.SetDefaults()
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				cfg.SetDefaults()
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	// Apply environment overrides to defaults
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Recognized variables:
//
//	PAGEMARK_DEFAULT_MODEL
//	PAGEMARK_ENDPOINT
//	PAGEMARK_API_KEY
//	PAGEMARK_HISTORY_LIMIT
//	PAGEMARK_HISTORY_WINDOW
//	PAGEMARK_REFRESH_WINDOW_MS
//	PAGEMARK_STORAGE_PATH
//	PAGEMARK_LOG_LEVEL
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PAGEMARK_DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("PAGEMARK_ENDPOINT"); v != "" {
		c.Backend.Endpoint = v
	}
	if v := os.Getenv("PAGEMARK_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("PAGEMARK_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.History.PersistLimit = n
		}
	}
	if v := os.Getenv("PAGEMARK_HISTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.History.WindowSize = n
		}
	}
	if v := os.Getenv("PAGEMARK_REFRESH_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.UI.RefreshWindowMs = n
		}
	}
	if v := os.Getenv("PAGEMARK_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("PAGEMARK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// SetDefaults fills in zero values left by a partial config file.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Backend.Endpoint == "" {
		c.Backend.Endpoint = def.Backend.Endpoint
	}
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = def.Backend.TimeoutSecs
	}
	if c.Backend.RequestsPerSecond == 0 {
		c.Backend.RequestsPerSecond = def.Backend.RequestsPerSecond
	}
	if c.History.PersistLimit == 0 {
		c.History.PersistLimit = def.History.PersistLimit
	}
	if c.History.WindowSize == 0 {
		c.History.WindowSize = def.History.WindowSize
	}
	if c.UI.RefreshWindowMs == 0 {
		c.UI.RefreshWindowMs = def.UI.RefreshWindowMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = def.Logging.MaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = def.Logging.MaxAgeDays
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateErrors collects every validation problem found in one pass.
type ValidateErrors []string

func (e ValidateErrors) Error() string {
	return "config validation failed: " + strings.Join(e, "; ")
}

// Validate checks the configuration for inconsistent or unusable values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.Endpoint != "" {
		if u, err := url.Parse(c.Backend.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("backend.endpoint %q is not a valid URL", c.Backend.Endpoint))
		}
	}
	if c.Backend.TimeoutSecs < 0 {
		errs = append(errs, "backend.timeout_secs must not be negative")
	}
	if c.Backend.RequestsPerSecond < 0 {
		errs = append(errs, "backend.requests_per_second must not be negative")
	}
	if c.History.PersistLimit < 1 {
		errs = append(errs, "history.persist_limit must be at least 1")
	}
	if c.History.WindowSize < 0 {
		errs = append(errs, "history.window_size must not be negative")
	}
	if c.History.WindowSize > c.History.PersistLimit {
		errs = append(errs, "history.window_size must not exceed history.persist_limit")
	}
	if c.UI.RefreshWindowMs < 1 {
		errs = append(errs, "ui.refresh_window_ms must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// SaveTOML writes the configuration to a TOML file, creating the parent
// directory if needed.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode TOML config: %w", err)
	}
	return nil
}
