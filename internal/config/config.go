package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bruce-go/scripthost/internal/core/slot"
)

type Config struct {
	Host     HostConfig     `toml:"host"`
	Display  DisplayConfig  `toml:"display"`
	Storage  StorageConfig  `toml:"storage"`
	Data     DataConfig     `toml:"data"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

type HostConfig struct {
	ArenaCapacity int           `toml:"arena_capacity"` // resource slots shared by every kind
	TimerCapacity int           `toml:"timer_capacity"`
	MaxSleep      time.Duration `toml:"max_sleep"` // longest single wait inside a drain pass
	ScriptsDir    string        `toml:"scripts_dir"`
}

type DisplayConfig struct {
	Width  int  `toml:"width"`
	Height int  `toml:"height"`
	Record bool `toml:"record"` // keep a log of draw calls
}

type StorageConfig struct {
	SD       string `toml:"sd"` // empty = no card
	LittleFS string `toml:"littlefs"`
}

type DataConfig struct {
	Kinds string `toml:"kinds"`
}

// DatabaseConfig configures the optional run journal. An empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

// Validate rejects capacities the slot tables cannot hold and non-positive
// sizes.
func (c *Config) Validate() error {
	if c.Host.ArenaCapacity < 1 || c.Host.ArenaCapacity > slot.MaxCapacity {
		return fmt.Errorf("host.arena_capacity %d out of range 1..%d", c.Host.ArenaCapacity, slot.MaxCapacity)
	}
	if c.Host.TimerCapacity < 1 || c.Host.TimerCapacity > slot.MaxCapacity {
		return fmt.Errorf("host.timer_capacity %d out of range 1..%d", c.Host.TimerCapacity, slot.MaxCapacity)
	}
	if c.Host.MaxSleep <= 0 {
		return fmt.Errorf("host.max_sleep must be positive")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display size %dx%d must be positive", c.Display.Width, c.Display.Height)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q: want json or console", c.Logging.Format)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Host: HostConfig{
			ArenaCapacity: 32,
			TimerCapacity: 16,
			MaxSleep:      time.Second,
			ScriptsDir:    "scripts",
		},
		Display: DisplayConfig{
			Width:  240,
			Height: 135,
		},
		Storage: StorageConfig{
			SD:       "data/sd",
			LittleFS: "data/littlefs",
		},
		Data: DataConfig{
			Kinds: "data/yaml/resource_kinds.yaml",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
