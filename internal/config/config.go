package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/pdfrange/internal/progress"
)

// Config defines configuration for the pdfrange CLI and server.
type Config struct {
	URL         string
	Length      int64
	ChunkSize   int64
	Concurrency int
	Progress    bool
	Timeout     time.Duration
	Retry       RetryConfig
	Log         LogConfig
	Server      ServerConfig
	Documents   []Document
}

// RetryConfig defines retry behavior. Attempts is 0 by default: a failed
// range is not requested again.
type RetryConfig struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string
	Format string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string
}

// Document is a sample PDF offered by the viewer.
type Document struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Pages int    `yaml:"pages"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ChunkSize:   64 * 1024, // 64KiB, the PDF.js default range chunk
		Concurrency: 8,
		Retry: RetryConfig{
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	URL         string          `yaml:"url"`
	Length      int64           `yaml:"length"`
	ChunkSize   string          `yaml:"chunk_size"`
	Concurrency int             `yaml:"concurrency"`
	Progress    bool            `yaml:"progress"`
	Timeout     string          `yaml:"timeout"`
	Retry       yamlRetryConfig `yaml:"retry"`
	Log         LogConfig       `yaml:"log"`
	Server      ServerConfig    `yaml:"server"`
	Documents   []Document      `yaml:"documents"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.URL != "" {
		cfg.URL = yc.URL
	}
	if yc.Length != 0 {
		cfg.Length = yc.Length
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	cfg.Progress = yc.Progress
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}
	if yc.Server.Addr != "" {
		cfg.Server.Addr = yc.Server.Addr
	}
	if len(yc.Documents) > 0 {
		cfg.Documents = yc.Documents
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PDFRANGE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PDFRANGE_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("PDFRANGE_LENGTH"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_LENGTH: %w", err)
		}
		c.Length = n
	}
	if v := os.Getenv("PDFRANGE_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("PDFRANGE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("PDFRANGE_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("PDFRANGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("PDFRANGE_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("PDFRANGE_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("PDFRANGE_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PDFRANGE_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}
	if v := os.Getenv("PDFRANGE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PDFRANGE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("PDFRANGE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}

	return nil
}

// Validate validates the settings shared by every command.
func (c *Config) Validate() error {
	if c.Length < 0 {
		return errors.New("config: length must not be negative")
	}
	if c.Concurrency <= 0 {
		return errors.New("config: concurrency must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	for i, d := range c.Documents {
		if d.URL == "" {
			return fmt.Errorf("config: documents[%d]: url is required", i)
		}
		if d.Pages < 0 {
			return fmt.Errorf("config: documents[%d]: pages must not be negative", i)
		}
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.Length != 0 {
		c.Length = override.Length
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Server.Addr != "" {
		c.Server.Addr = override.Server.Addr
	}
	if len(override.Documents) > 0 {
		c.Documents = override.Documents
	}
	return c
}
