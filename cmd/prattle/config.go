package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// Config holds the configuration for the prattle command.
type Config struct {
	Order           int      `json:"order"`
	Backend         string   `json:"backend"` // "memory", "redis" or "sqlite"
	LogLevel        string   `json:"log_level"`
	SnapshotPath    string   `json:"snapshot_path"`
	DatabasePath    string   `json:"database_path"`
	RedisAddr       string   `json:"redis_addr"`
	RedisNamespace  string   `json:"redis_namespace"`
	SourceURLs      []string `json:"source_urls"`
	FetchIntervalMs int      `json:"fetch_interval_ms"`
	ChannelBuffer   int      `json:"channel_buffer"`
	MaxTokens       int      `json:"max_tokens"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Order:           2,
		Backend:         "memory",
		LogLevel:        "info",
		SnapshotPath:    "./data/prattle.json",
		DatabasePath:    "./data/prattle.db?_journal_mode=WAL&_busy_timeout=5000",
		RedisAddr:       "localhost:6379",
		RedisNamespace:  "prattle",
		SourceURLs:      []string{},
		FetchIntervalMs: 2000,
		ChannelBuffer:   256,
		MaxTokens:       100,
	}
}

// loadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func loadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the command can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}
