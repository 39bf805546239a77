package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/glebk/openfield/internal/export"
)

// Config holds application configuration
type Config struct {
	DurationSeconds int           `env:"OPENFIELD_DURATION_SECONDS" envDefault:"300"`
	TickInterval    time.Duration `env:"OPENFIELD_TICK_INTERVAL" envDefault:"200ms"`
	Locale          string        `env:"OPENFIELD_LOCALE" envDefault:"en-US"`
	Export          ExportConfig
	Log             LogConfig
}

// ExportConfig defines where and how reports are exported
type ExportConfig struct {
	Dir    string `env:"OPENFIELD_EXPORT_DIR" envDefault:"."`
	Format string `env:"OPENFIELD_EXPORT_FORMAT" envDefault:"txt"`
	Chart  bool   `env:"OPENFIELD_EXPORT_CHART" envDefault:"false"`
}

// LogConfig defines the log destination. File "-" logs to stderr.
type LogConfig struct {
	File       string `env:"OPENFIELD_LOG_FILE" envDefault:"openfield.log"`
	Level      string `env:"OPENFIELD_LOG_LEVEL" envDefault:"info"`
	MaxSizeMB  int    `env:"OPENFIELD_LOG_MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"OPENFIELD_LOG_MAX_BACKUPS" envDefault:"3"`
}

// Load loads configuration from a .env file, if present, and the environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	return Parse()
}

// Parse reads configuration from the environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.DurationSeconds <= 0 {
		return fmt.Errorf("OPENFIELD_DURATION_SECONDS must be positive, got %d", c.DurationSeconds)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("OPENFIELD_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("OPENFIELD_LOCALE %q is not a valid locale: %w", c.Locale, err)
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("OPENFIELD_EXPORT_FORMAT: %w", err)
	}
	return nil
}

// ExportFormat returns the parsed default export format
func (c *Config) ExportFormat() export.Format {
	f, err := export.ParseFormat(c.Export.Format)
	if err != nil {
		return export.FormatText
	}
	return f
}
