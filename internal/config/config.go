package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "METALPOD_"

// Unlock ledger backends.
const (
	UnlocksSave   = "save"
	UnlocksSQLite = "sqlite"
)

type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Save        SaveConfig        `yaml:"save" envPrefix:"SAVE_"`
	Persistence PersistenceConfig `yaml:"persistence" envPrefix:"PERSISTENCE_"`
	Engine      EngineConfig      `yaml:"engine" envPrefix:"ENGINE_"`
	Content     ContentConfig     `yaml:"content" envPrefix:"CONTENT_"`
	Broadcast   BroadcastConfig   `yaml:"broadcast" envPrefix:"BROADCAST_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Port int    `yaml:"port" env:"PORT"`
	Host string `yaml:"host" env:"HOST"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SaveConfig struct {
	// Dir holds save.json; empty means the per-user state directory.
	Dir    string `yaml:"dir" env:"DIR"`
	Backup bool   `yaml:"backup" env:"BACKUP"`
}

type PersistenceConfig struct {
	Unlocks string `yaml:"unlocks" env:"UNLOCKS"`
	DBPath  string `yaml:"db_path" env:"DB_PATH"`
}

type EngineConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	RetriggerInterval time.Duration `yaml:"retrigger_interval" env:"RETRIGGER_INTERVAL"`
	AutosaveInterval  time.Duration `yaml:"autosave_interval" env:"AUTOSAVE_INTERVAL"`
	// MaxPasses caps one reevaluation burst; 0 derives it from the catalog.
	MaxPasses int `yaml:"max_passes" env:"MAX_PASSES"`
}

// ContentConfig points at authored catalogs. Empty paths use the embedded
// defaults.
type ContentConfig struct {
	Achievements string `yaml:"achievements" env:"ACHIEVEMENTS"`
	Shop         string `yaml:"shop" env:"SHOP"`
}

type BroadcastConfig struct {
	SendBuffer int `yaml:"send_buffer" env:"SEND_BUFFER"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Save: SaveConfig{
			Backup: true,
		},
		Persistence: PersistenceConfig{
			Unlocks: UnlocksSave,
			DBPath:  "unlocks.db",
		},
		Engine: EngineConfig{
			TickInterval:      time.Second,
			RetriggerInterval: 5 * time.Second,
			AutosaveInterval:  30 * time.Second,
		},
		Broadcast: BroadcastConfig{
			SendBuffer: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and then applies METALPOD_* environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Persistence.Unlocks {
	case UnlocksSave:
	case UnlocksSQLite:
		if c.Persistence.DBPath == "" {
			return errors.New("persistence.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("persistence.unlocks %q: want %q or %q",
			c.Persistence.Unlocks, UnlocksSave, UnlocksSQLite)
	}
	if c.Engine.TickInterval <= 0 {
		return errors.New("engine.tick_interval must be positive")
	}
	if c.Engine.RetriggerInterval <= 0 {
		return errors.New("engine.retrigger_interval must be positive")
	}
	if c.Engine.AutosaveInterval <= 0 {
		return errors.New("engine.autosave_interval must be positive")
	}
	if c.Engine.MaxPasses < 0 {
		return errors.New("engine.max_passes must not be negative")
	}
	if c.Broadcast.SendBuffer < 1 {
		return errors.New("broadcast.send_buffer must be at least 1")
	}
	return nil
}
