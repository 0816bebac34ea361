package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configurable timebox settings.
type Config struct {
	DataDir         string        `mapstructure:"data_dir"` // empty means the XDG data dir
	Backend         string        `mapstructure:"backend"`  // "file" | "sqlite"
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	ExportDir       string        `mapstructure:"export_dir"`
	ShareCommand    string        `mapstructure:"share_command"`
	ShareDir        string        `mapstructure:"share_dir"`     // outbox used when share_command is empty
	ExportFormat    string        `mapstructure:"export_format"` // "json" | "yaml"
	LogLevel        string        `mapstructure:"log_level"`
	LogFile         string        `mapstructure:"log_file"`
	WatchExternal   *bool         `mapstructure:"watch_external"`
}

// Keys lists every recognised configuration key.
var Keys = []string{
	"data_dir", "backend", "tick_interval", "checkpoint_every", "export_dir",
	"share_command", "share_dir", "export_format", "log_level", "log_file", "watch_external",
}

// EnvPrefix is prepended to every key to form its environment variable.
const EnvPrefix = "TIMEBOX"

const projectFile = ".timebox.yaml"

// Defaults returns sensible default configuration values.
func Defaults() Config {
	watch := true
	return Config{
		Backend:         "file",
		TickInterval:    time.Second,
		CheckpointEvery: 5,
		ExportFormat:    "json",
		LogLevel:        "info",
		WatchExternal:   &watch,
	}
}

// Watch reports the effective watch_external value.
func (c Config) Watch() bool {
	return c.WatchExternal == nil || *c.WatchExternal
}

// GlobalPath is ~/.config/timebox/config.yaml.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "timebox", "config.yaml"), nil
}

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .timebox.yaml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(projectFile, false)
}

// loadFile parses a YAML or JSON config file, chosen by extension.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// LoadEnv reads TIMEBOX_<KEY> variables. Unset variables leave the field
// zero so Merge skips them.
func LoadEnv() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range Keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return &cfg, nil
}

// Load merges defaults, the global file, the project file and the
// environment, in increasing precedence, and validates the result.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	env, err := LoadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project, env)
	return cfg, cfg.Validate()
}

// Merge overlays layers onto the defaults, later layers taking precedence.
// Zero values in a layer fall back to the layer below.
func Merge(layers ...*Config) Config {
	result := Defaults()
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.DataDir != "" {
			result.DataDir = l.DataDir
		}
		if l.Backend != "" {
			result.Backend = l.Backend
		}
		if l.TickInterval > 0 {
			result.TickInterval = l.TickInterval
		}
		if l.CheckpointEvery > 0 {
			result.CheckpointEvery = l.CheckpointEvery
		}
		if l.ExportDir != "" {
			result.ExportDir = l.ExportDir
		}
		if l.ShareCommand != "" {
			result.ShareCommand = l.ShareCommand
		}
		if l.ShareDir != "" {
			result.ShareDir = l.ShareDir
		}
		if l.ExportFormat != "" {
			result.ExportFormat = l.ExportFormat
		}
		if l.LogLevel != "" {
			result.LogLevel = l.LogLevel
		}
		if l.LogFile != "" {
			result.LogFile = l.LogFile
		}
		if l.WatchExternal != nil {
			w := *l.WatchExternal
			result.WatchExternal = &w
		}
	}
	return result
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch c.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("backend must be file or sqlite, got %q", c.Backend)
	}
	switch c.ExportFormat {
	case "json", "yaml", "yml":
	default:
		return fmt.Errorf("export_format must be json or yaml, got %q", c.ExportFormat)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint_every must be at least 1, got %d", c.CheckpointEvery)
	}
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
