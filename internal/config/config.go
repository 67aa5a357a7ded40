// Package config loads musicboxd runtime configuration.
//
// Values are resolved in three layers: built-in defaults, an optional TOML or
// YAML file (picked by extension), then MUSICBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/musicbox/internal/logging"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "MUSICBOX_"

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Duration is a time.Duration that decodes from strings such as "2s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration.
type Config struct {
	// DataDir holds the database and installed plugins.
	DataDir string `toml:"data_dir" yaml:"data_dir" env:"DATA_DIR"`

	// Storage selects the persistence backend: "sqlite" or "memory".
	Storage string `toml:"storage" yaml:"storage" env:"STORAGE"`

	// DatabasePath defaults to <DataDir>/musicbox.db.
	DatabasePath string `toml:"database_path" yaml:"database_path" env:"DATABASE_PATH"`

	// PluginDir is the base for relative plugin main references.
	PluginDir string `toml:"plugin_dir" yaml:"plugin_dir" env:"PLUGIN_DIR"`

	LogLevel string `toml:"log_level" yaml:"log_level" env:"LOG_LEVEL"`

	Runtime   RuntimeConfig   `toml:"runtime" yaml:"runtime" envPrefix:"RUNTIME_"`
	HotReload HotReloadConfig `toml:"hot_reload" yaml:"hot_reload" envPrefix:"HOT_RELOAD_"`
}

// RuntimeConfig bounds plugin execution.
type RuntimeConfig struct {
	ExecutionTimeout   Duration `toml:"execution_timeout" yaml:"execution_timeout" env:"EXECUTION_TIMEOUT"`
	HTTPTimeout        Duration `toml:"http_timeout" yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	CallStackSize      int      `toml:"call_stack_size" yaml:"call_stack_size" env:"CALL_STACK_SIZE"`
	EnforcePermissions bool     `toml:"enforce_permissions" yaml:"enforce_permissions" env:"ENFORCE_PERMISSIONS"`
}

// HotReloadConfig configures the development reload server.
type HotReloadConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	DevDir       string   `toml:"dev_dir" yaml:"dev_dir" env:"DEV_DIR"`
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval" env:"POLL_INTERVAL"`
	Debounce     Duration `toml:"debounce" yaml:"debounce" env:"DEBOUNCE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := filepath.Join(os.TempDir(), "musicbox")
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".musicbox")
	}
	return &Config{
		DataDir:  dataDir,
		Storage:  StorageSQLite,
		LogLevel: "info",
		Runtime: RuntimeConfig{
			ExecutionTimeout: Duration(5 * time.Second),
			HTTPTimeout:      Duration(10 * time.Second),
			CallStackSize:    256,
		},
		HotReload: HotReloadConfig{
			PollInterval: Duration(2 * time.Second),
			Debounce:     Duration(100 * time.Millisecond),
		},
	}
}

// Load builds a Config from defaults, the file at path (optional) and the
// environment. A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("config file %s: unsupported format (want .toml, .yaml or .yml)", path)
	}
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) fillDerived() {
	if c.DatabasePath == "" && c.DataDir != "" {
		c.DatabasePath = filepath.Join(c.DataDir, "musicbox.db")
	}
	if c.PluginDir == "" && c.DataDir != "" {
		c.PluginDir = filepath.Join(c.DataDir, "plugins")
	}
	if c.HotReload.DevDir == "" && c.DataDir != "" {
		c.HotReload.DevDir = filepath.Join(c.DataDir, "dev-plugins")
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage {
	case StorageSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("database_path is required for sqlite storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage))
	}
	if c.Runtime.ExecutionTimeout < 0 {
		errs = append(errs, errors.New("runtime.execution_timeout must not be negative"))
	}
	if c.Runtime.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("runtime.http_timeout must be positive"))
	}
	if c.Runtime.CallStackSize < 0 {
		errs = append(errs, errors.New("runtime.call_stack_size must not be negative"))
	}
	if c.HotReload.PollInterval < 0 {
		errs = append(errs, errors.New("hot_reload.poll_interval must not be negative"))
	}

	return errors.Join(errs...)
}
