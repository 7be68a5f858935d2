// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	ServerPort          string        `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	DownloadsPath       string        `env:"DOWNLOADS_PATH" envDefault:"/downloads"`
	SettingsPath        string        `env:"SETTINGS_PATH" envDefault:"settings.json"`
	YtdlpPath           string        `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	MaxDownloadDuration time.Duration `env:"MAX_DOWNLOAD_DURATION" envDefault:"2h"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	// Validate downloads path
	if c.DownloadsPath == "" {
		return fmt.Errorf("DOWNLOADS_PATH cannot be empty")
	}

	// Clean and validate the path
	cleanPath := filepath.Clean(c.DownloadsPath)
	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("DOWNLOADS_PATH must be an absolute path, got: %s", c.DownloadsPath)
	}

	// Check if path exists and is a directory (only if it exists)
	if info, err := os.Stat(cleanPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("DOWNLOADS_PATH must be a directory, got file: %s", cleanPath)
		}
	}

	// Update the config with cleaned path
	c.DownloadsPath = cleanPath

	if c.YtdlpPath == "" {
		return fmt.Errorf("YTDLP_PATH cannot be empty")
	}

	if c.MaxDownloadDuration < 0 {
		return fmt.Errorf("MAX_DOWNLOAD_DURATION cannot be negative")
	}

	return nil
}
