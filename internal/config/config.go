// Package config handles roomline configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration structure for roomline.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Timeline settings
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`
}

// GlobalConfig contains global roomline settings.
type GlobalConfig struct {
	// DataDir is where roomline stores its data (default: ~/.local/share/roomline).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/roomline).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TimelineConfig contains timeline strategy settings.
type TimelineConfig struct {
	// InitialSize is how many events the first timeline build materializes.
	InitialSize int `yaml:"initial_size" mapstructure:"initial_size"`

	// BuildReadReceipts attaches read receipts to built timeline events.
	BuildReadReceipts bool `yaml:"build_read_receipts" mapstructure:"build_read_receipts"`

	// SenderWithLiveRoomState overlays live sender metadata on snapshots.
	SenderWithLiveRoomState bool `yaml:"sender_with_live_room_state" mapstructure:"sender_with_live_room_state"`

	// EnableChainRepair runs the chunk-chain integrity passes on rebuild.
	EnableChainRepair bool `yaml:"enable_chain_repair" mapstructure:"enable_chain_repair"`

	// RepairMaxHops bounds each chain-repair traversal.
	RepairMaxHops int `yaml:"repair_max_hops" mapstructure:"repair_max_hops"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "roomline"),
			ConfigDir: filepath.Join(homeDir, ".config", "roomline"),
		},
		Database: DatabaseConfig{
			Path:          "", // Will be set to DataDir/roomline.db
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Timeline: TimelineConfig{
			InitialSize:       30,
			BuildReadReceipts: true,
			RepairMaxHops:     100,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}

	if c.Timeline.InitialSize < 1 {
		return fmt.Errorf("timeline.initial_size must be at least 1")
	}

	if c.Timeline.RepairMaxHops < 1 {
		return fmt.Errorf("timeline.repair_max_hops must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
		// ok
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	switch c.Logging.Format {
	case "json", "console", "":
		// ok
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "roomline.db")
}
