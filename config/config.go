// Package config loads server configuration from an optional YAML file in
// the data directory and SWITCHER_* environment variables.
//
// Keys are derived from field names: SWITCHER_AUTH_TOKEN, and for nested
// sections SWITCHER_BROWSER_DRIVER or SWITCHER_LOG_LEVEL. Only the full names
// are read.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SWITCHER"

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"

	DriverRod    = "rod"
	DriverMemory = "memory"
)

type Config struct {
	Port      int    `yaml:"port" split_words:"true"`
	AuthToken string `yaml:"auth_token" split_words:"true"`
	DataDir   string `yaml:"-" split_words:"true"`
	DevMode   bool   `yaml:"dev_mode" split_words:"true"`

	// Store selects the session backend: "file" or "sqlite".
	Store string `yaml:"store" split_words:"true"`

	Browser BrowserConfig `yaml:"browser"`
	Log     LogConfig     `yaml:"log"`

	// ShowQR prints the connect URL as a QR code when stdout is a terminal.
	ShowQR bool `yaml:"show_qr" split_words:"true"`
}

type BrowserConfig struct {
	// Driver selects "rod" (Chrome over CDP) or "memory".
	Driver      string `yaml:"driver" split_words:"true"`
	DebuggerURL string `yaml:"debugger_url" split_words:"true"`
	Headless    bool   `yaml:"headless" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
	File   string `yaml:"file" split_words:"true"`
}

func Default() *Config {
	dataDir := ".session-switcher"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".session-switcher")
	}
	return &Config{
		Port:    9870,
		DataDir: dataDir,
		Store:   StoreFile,
		Browser: BrowserConfig{Driver: DriverRod},
		Log:     LogConfig{Level: "info"},
		ShowQR:  true,
	}
}

// Load builds the configuration. Precedence from low to high: defaults,
// <dataDir>/config.yaml, environment. dataDir overrides SWITCHER_DATA_DIR
// when non-empty.
func Load(dataDir string) (*Config, error) {
	cfg := Default()

	// The environment is read twice: once to find the data directory, and
	// again after the file so that it wins.
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.loadFile(filepath.Join(cfg.DataDir, "config.yaml")); err != nil {
		return nil, err
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("SWITCHER_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("SWITCHER_DATA_DIR must not be empty")
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("SWITCHER_STORE must be %q or %q, got %q", StoreFile, StoreSQLite, c.Store)
	}
	switch c.Browser.Driver {
	case DriverRod, DriverMemory:
	default:
		return fmt.Errorf("SWITCHER_BROWSER_DRIVER must be %q or %q, got %q", DriverRod, DriverMemory, c.Browser.Driver)
	}
	return nil
}

// RequireToken reports a missing auth token. Only the HTTP server needs one.
func (c *Config) RequireToken() error {
	if c.AuthToken == "" {
		return fmt.Errorf("SWITCHER_AUTH_TOKEN is required")
	}
	return nil
}
