package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	State    StateConfig    `mapstructure:"state"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DownloadConfig contains download engine settings
type DownloadConfig struct {
	Dir             string `mapstructure:"dir"`
	SpoolDir        string `mapstructure:"spool_dir"`
	PublishInterval string `mapstructure:"publish_interval"`
	SpoolMaxAge     string `mapstructure:"spool_max_age"`
}

// StateConfig contains state store settings
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig contains HTTP transport settings
type HTTPConfig struct {
	BufferSizeKB int    `mapstructure:"buffer_size_kb"`
	UserAgent    string `mapstructure:"user_agent"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("download.dir", "downloads")
	viper.SetDefault("download.spool_dir", "")
	viper.SetDefault("download.publish_interval", "200ms")
	viper.SetDefault("download.spool_max_age", "24h")
	viper.SetDefault("state.path", "")
	viper.SetDefault("http.buffer_size_kb", 256)
	viper.SetDefault("http.user_agent", "resume-fetch")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Download.Dir == "" {
		return fmt.Errorf("download.dir is required")
	}

	if _, err := time.ParseDuration(c.Download.PublishInterval); err != nil {
		return fmt.Errorf("invalid download.publish_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Download.SpoolMaxAge); err != nil {
		return fmt.Errorf("invalid download.spool_max_age: %w", err)
	}

	if c.HTTP.BufferSizeKB <= 0 {
		return fmt.Errorf("http.buffer_size_kb must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetSpoolDir returns the spool directory, defaulting to a subdirectory of
// the download directory.
func (c *DownloadConfig) GetSpoolDir() string {
	if c.SpoolDir != "" {
		return c.SpoolDir
	}
	return c.Dir + "/.spool"
}

// GetPublishInterval returns the publish interval as time.Duration
func (c *DownloadConfig) GetPublishInterval() time.Duration {
	d, _ := time.ParseDuration(c.PublishInterval)
	if d == 0 {
		return 200 * time.Millisecond
	}
	return d
}

// GetSpoolMaxAge returns the spool max age as time.Duration
func (c *DownloadConfig) GetSpoolMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.SpoolMaxAge)
	if d == 0 {
		return 24 * time.Hour
	}
	return d
}

// GetBufferSize returns the HTTP copy buffer size in bytes
func (c *HTTPConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 256 * 1024
	}
	return c.BufferSizeKB * 1024
}
