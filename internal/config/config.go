package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SyncConfig tunes the fetch and refresh behavior of the engine
type SyncConfig struct {
	// ThreadPageSize is how many threads one page request asks for
	ThreadPageSize int `yaml:"thread_page_size"`
	// MailboxPollSeconds is the interval between mailbox counter refreshes
	MailboxPollSeconds int `yaml:"mailbox_poll_seconds"`
	// SendPollMs is the interval between send-task status polls
	SendPollMs int `yaml:"send_poll_ms"`
}

// DebounceConfig holds the quiet windows. These are tuning constants, not
// invariants; tests shrink them to keep runs fast.
type DebounceConfig struct {
	ReadMarkMs int `yaml:"read_mark_ms"`
	SearchMs   int `yaml:"search_ms"`
}

// LogConfig configures the rotating structured log
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config holds all configuration for the sync engine
type Config struct {
	Sync     SyncConfig     `yaml:"sync"`
	Debounce DebounceConfig `yaml:"debounce"`
	Log      LogConfig      `yaml:"log"`
	// DatabasePath locates the local SQLite store for saved searches and
	// search history
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			ThreadPageSize:     20,
			MailboxPollSeconds: 90,
			SendPollMs:         2000,
		},
		Debounce: DebounceConfig{
			ReadMarkMs: 300,
			SearchMs:   500,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML config file, applying defaults for anything unset. A
// missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Sync.ThreadPageSize <= 0 {
		c.Sync.ThreadPageSize = def.Sync.ThreadPageSize
	}
	if c.Sync.MailboxPollSeconds <= 0 {
		c.Sync.MailboxPollSeconds = def.Sync.MailboxPollSeconds
	}
	if c.Sync.SendPollMs <= 0 {
		c.Sync.SendPollMs = def.Sync.SendPollMs
	}
	if c.Debounce.ReadMarkMs <= 0 {
		c.Debounce.ReadMarkMs = def.Debounce.ReadMarkMs
	}
	if c.Debounce.SearchMs <= 0 {
		c.Debounce.SearchMs = def.Debounce.SearchMs
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = def.Log.MaxAgeDays
	}
}

// ReadMarkDebounce returns the read-mark quiet window as a duration
func (c *Config) ReadMarkDebounce() time.Duration {
	return time.Duration(c.Debounce.ReadMarkMs) * time.Millisecond
}

// SearchDebounce returns the search quiet window as a duration
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.Debounce.SearchMs) * time.Millisecond
}

// MailboxPollInterval returns the mailbox refresh interval as a duration
func (c *Config) MailboxPollInterval() time.Duration {
	return time.Duration(c.Sync.MailboxPollSeconds) * time.Second
}

// SendPollInterval returns the send-task poll interval as a duration
func (c *Config) SendPollInterval() time.Duration {
	return time.Duration(c.Sync.SendPollMs) * time.Millisecond
}
