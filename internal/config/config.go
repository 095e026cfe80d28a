// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; connection passwords go to the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"sqlwb/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel    string   `json:"log_level"`
	DB          DBConfig `json:"db"`
	Concurrency int      `json:"concurrency"`
	// Settings holds parser, variable, runner and per-product keys, see Settings.
	Settings map[string]any `json:"settings,omitempty"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	// DSN is used when neither --dsn nor the environment provide one.
	DSN string `json:"dsn,omitempty"`
	// Profile names the keychain profile used by default.
	Profile string `json:"profile,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel:    "warn",
		Concurrency: 4,
		Settings:    map[string]any{},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFile(p)
}

// LoadFile reads configuration from p; a missing file returns defaults.
func LoadFile(p string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Default(), err
	}
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, c)
}

// SaveFile writes configuration to p with 0600 permissions.
func SaveFile(p string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// NewSettings returns the settings provider for this configuration with environment
// overrides enabled.
func (c Config) NewSettings() *Settings {
	return NewSettings(c.Settings).WithEnv(os.LookupEnv)
}
