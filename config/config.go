// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "echo"
	configFileName = "settings.json"
)

// DefaultHotkey is the dictation hotkey used until the user records one.
const DefaultHotkey = "ctrl+shift+space"

// Config represents the persisted application settings. The Hotkey field is
// the source of truth consulted when a hotkey capture has to roll back.
type Config struct {
	Hotkey     string `json:"hotkey"`
	Language   string `json:"language"`
	AutoInsert bool   `json:"auto_insert"`
	DeviceName string `json:"device_name,omitempty"`
	ModelName  string `json:"model_name,omitempty"`
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Hotkey == "" {
		cfg.Hotkey = DefaultHotkey
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}

	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultConfig() *Config {
	return &Config{
		Hotkey:     DefaultHotkey,
		Language:   "auto",
		AutoInsert: true,
	}
}
