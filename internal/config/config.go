// Package config loads the YAML configuration file, writing a default one
// on first run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds everything receiptsage needs besides credentials, which
// stay in the environment.
type Config struct {
	Storage struct {
		ReceiptsDir  string `yaml:"receipts_dir"`
		DatabasePath string `yaml:"database_path"`
		LedgerPath   string `yaml:"ledger_path"`
	} `yaml:"storage"`
	Extraction struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		OllamaURL string `yaml:"ollama_url"`
	} `yaml:"extraction"`
	Import struct {
		Workers int `yaml:"workers"`
	} `yaml:"import"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	var c Config
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.Storage.ReceiptsDir = filepath.Join(home, "ReceiptSage", "data", "receipts")
	c.Storage.DatabasePath = "receipts.db"
	c.Storage.LedgerPath = "receipts-ledger.db"
	c.Extraction.Provider = "gemini"
	c.Extraction.Model = ""
	c.Extraction.OllamaURL = "http://localhost:11434"
	c.Import.Workers = 1
	return &c
}

// Load reads the config at path. A missing file is not an error: the
// defaults are written there and returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c := Default()
		if werr := c.Write(path); werr != nil {
			return nil, werr
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return c, nil
}

// Write saves the config as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
