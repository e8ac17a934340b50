package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/markup/pkg/templating"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP server and its storage.
type ServerConfig struct {
	ServerAddr      string            `json:"server_addr"`
	LogLevel        string            `json:"log_level"`
	DataDir         string            `json:"data_dir"`
	DatabasePath    string            `json:"database_path"`
	FragmentsFile   string            `json:"fragments_file"`
	DefaultTemplate string            `json:"default_template"`
	EnableStreaming bool              `json:"enable_streaming"`
	Headers         map[string]string `json:"headers"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:      ":7277",
		LogLevel:        "info",
		DataDir:         "./data",
		DatabasePath:    "./data/markup.db?_journal_mode=WAL&_busy_timeout=5000",
		FragmentsFile:   "fragments.yaml",
		DefaultTemplate: "index",
		EnableStreaming: true,
		Headers: map[string]string{
			"Cache-Control": "no-store, no-cache",
			"Content-Type":  "text/html; charset=utf-8",
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Templates == nil {
		config.Templates = templating.DefaultConfig()
	}
	return config, nil
}

// fragmentsPath returns where the fragment seed file lives, or "" when none is
// configured. Relative names are taken inside the data dir.
func (c *ServerConfig) fragmentsPath() string {
	if c.FragmentsFile == "" || filepath.IsAbs(c.FragmentsFile) {
		return c.FragmentsFile
	}
	return filepath.Join(c.DataDir, c.FragmentsFile)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
