// Package config provides application-wide configuration, loaded from an
// optional YAML file and overridden by environment variables. All fields have
// safe defaults so the binary runs locally without any setup.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the nova server.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// DataDir holds providers.json, debate_config.json and the history DB.
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// OllamaBaseURL seeds the default local provider on first start.
	OllamaBaseURL string `yaml:"ollama_base_url"`

	// RequestTimeoutSeconds bounds non-streaming upstream calls.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

const (
	envKeyConfigFile    = "NOVA_CONFIG"
	envKeyAddr          = "NOVA_ADDR"
	envKeyDataDir       = "NOVA_DATA_DIR"
	envKeyLogLevel      = "NOVA_LOG_LEVEL"
	envKeyOllamaBaseURL = "OLLAMA_BASE_URL"
	envKeyTimeout       = "NOVA_REQUEST_TIMEOUT"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:                  ":8080",
		DataDir:               "data",
		LogLevel:              "info",
		OllamaBaseURL:         "http://localhost:11434",
		RequestTimeoutSeconds: 120,
	}
}

// Load builds the effective configuration: defaults, then the YAML file named
// by NOVA_CONFIG (if set), then individual env var overrides.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv(envKeyConfigFile); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.Addr = envOr(envKeyAddr, cfg.Addr)
	cfg.DataDir = envOr(envKeyDataDir, cfg.DataDir)
	cfg.LogLevel = envOr(envKeyLogLevel, cfg.LogLevel)
	cfg.OllamaBaseURL = envOr(envKeyOllamaBaseURL, cfg.OllamaBaseURL)
	if v := os.Getenv(envKeyTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: %s=%q is not a positive integer", envKeyTimeout, v)
		}
		cfg.RequestTimeoutSeconds = n
	}

	return cfg, nil
}

// ProvidersPath is where the provider registry file lives.
func (c Config) ProvidersPath() string {
	return filepath.Join(c.DataDir, "providers.json")
}

// DebateDefaultsPath is where saved debate lineups live.
func (c Config) DebateDefaultsPath() string {
	return filepath.Join(c.DataDir, "debate_config.json")
}

// HistoryDBPath is where the SQLite chat history lives.
func (c Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.sqlite")
}

// loadFile merges a YAML config file into cfg. Unknown keys are rejected so
// typos fail loudly instead of silently using defaults.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
