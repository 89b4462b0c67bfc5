// Package config handles configuration loading and validation for hivesync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Follow-up dispatch modes.
const (
	DispatchLocal   = "local"
	DispatchWebhook = "webhook"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Streams  StreamsConfig  `yaml:"streams"`
	Drafts   DraftsConfig   `yaml:"drafts"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logs     LogsConfig     `yaml:"logs"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// ServerConfig configures the HTTP and stream listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins are glob patterns matched against the Origin header of
	// stream upgrades. Empty allows same-origin requests only.
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Pprof           bool          `yaml:"pprof"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// StreamsConfig tunes per-subscriber delivery.
type StreamsConfig struct {
	Buffer       int           `yaml:"buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// DraftsConfig tunes the follow-up draft lifecycle.
type DraftsConfig struct {
	AutosaveDelay time.Duration `yaml:"autosave_delay"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
}

// DispatchConfig selects how follow-ups reach the agent.
type DispatchConfig struct {
	Mode       string `yaml:"mode"` // local or webhook
	URL        string `yaml:"url"`  // webhook endpoint
	MaxRetries int    `yaml:"max_retries"`
}

// LogsConfig bounds in-memory process logs.
type LogsConfig struct {
	MaxLines      int           `yaml:"max_lines"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:7420",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			BusyTimeout:  5000,
		},
		Streams: StreamsConfig{
			Buffer:       256,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Drafts: DraftsConfig{
			AutosaveDelay: 500 * time.Millisecond,
			SendTimeout:   30 * time.Second,
		},
		Dispatch: DispatchConfig{
			Mode:       DispatchLocal,
			MaxRetries: 3,
		},
		Logs: LogsConfig{
			MaxLines:      10000,
			Retention:     time.Hour,
			SweepInterval: 5 * time.Minute,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = d.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = d.Database.BusyTimeout
	}
	if c.Streams.Buffer == 0 {
		c.Streams.Buffer = d.Streams.Buffer
	}
	if c.Streams.WriteTimeout == 0 {
		c.Streams.WriteTimeout = d.Streams.WriteTimeout
	}
	if c.Streams.PingInterval == 0 {
		c.Streams.PingInterval = d.Streams.PingInterval
	}
	if c.Drafts.SendTimeout == 0 {
		c.Drafts.SendTimeout = d.Drafts.SendTimeout
	}
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = d.Dispatch.Mode
	}
	if c.Logs.MaxLines == 0 {
		c.Logs.MaxLines = d.Logs.MaxLines
	}
	if c.Logs.Retention == 0 {
		c.Logs.Retention = d.Logs.Retention
	}
	if c.Logs.SweepInterval == 0 {
		c.Logs.SweepInterval = d.Logs.SweepInterval
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Streams.Buffer < 1 {
		return fmt.Errorf("streams.buffer must be at least 1")
	}

	if c.Streams.PingInterval <= 0 || c.Streams.WriteTimeout <= 0 {
		return fmt.Errorf("streams.ping_interval and streams.write_timeout must be positive")
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns cannot exceed max_open_conns")
	}

	if c.Drafts.AutosaveDelay < 0 {
		return fmt.Errorf("drafts.autosave_delay cannot be negative")
	}

	if c.Drafts.SendTimeout < 0 {
		return fmt.Errorf("drafts.send_timeout cannot be negative")
	}

	switch c.Dispatch.Mode {
	case DispatchLocal:
	case DispatchWebhook:
		if c.Dispatch.URL == "" {
			return fmt.Errorf("dispatch.url is required for webhook mode")
		}
	default:
		return fmt.Errorf("dispatch.mode %q must be %q or %q", c.Dispatch.Mode, DispatchLocal, DispatchWebhook)
	}

	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch.max_retries cannot be negative")
	}

	return nil
}

// DatabasePath returns the path of the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "hivesync.db")
}
