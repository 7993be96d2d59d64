// Package config loads and saves the YAML configuration for ledgerd.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend selects which Storage implementation ledgerd opens.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Config holds all configuration for the ledgerd batch runner.
type Config struct {
	// Storage selects and configures the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Amount controls decimal formatting of the balance output. CSV
	// input amounts are always parsed with ingest.AmountDecimals.
	Amount AmountConfig `yaml:"amount"`

	// Logging controls the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend Backend `yaml:"backend"`

	// DataDir is the directory holding the sqlite database file (or
	// any future on-disk backend). Ignored by the memory backend.
	DataDir string `yaml:"data_dir"`
}

// AmountConfig holds the decimal-place convention for the balance output.
type AmountConfig struct {
	// Decimals is the number of fractional digits used when printing
	// balances, e.g. 4 means 15000 smallest units print as "1.5".
	Decimals uint8 `yaml:"decimals"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendMemory,
			DataDir: "~/.ledgerd",
		},
		Amount: AmountConfig{
			Decimals: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// ConfigPath returns the full path to the config file for the given
// data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// Load loads configuration from a YAML file under dataDir. If the file
// doesn't exist, it creates one with default values.
func Load(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("config: create default: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	header := []byte("# ledgerd configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
