// Package config provides configuration loading and defaults for sigloop.
//
// Configuration is loaded from a TOML file in the user's data directory and
// covers the loop timing, the per-tick work unit, the optional file watch
// source, the control endpoint, and logging.
package config

//go:generate go run ../../cmd/genconfig

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/sigloop/internal/atomicfile"
	"tools.zach/dev/sigloop/internal/interrupt"
	"tools.zach/dev/sigloop/internal/migrate"
	"tools.zach/dev/sigloop/internal/paths"
	"tools.zach/dev/sigloop/internal/watch"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Loop holds tick period, interrupt queue and shutdown settings.
	Loop LoopConfig `toml:"loop"`
	// Work selects the unit of work run on every tick.
	Work WorkConfig `toml:"work"`
	// Watch configures the optional file-change event source.
	Watch WatchConfig `toml:"watch"`
	// Control configures the local stop/ping endpoint.
	Control ControlConfig `toml:"control"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// LoopConfig holds select loop settings.
type LoopConfig struct {
	// Period is the interval between periodic ticks.
	Period Duration `toml:"period"`
	// InterruptCapacity bounds the interrupt event queue.
	InterruptCapacity int `toml:"interrupt_capacity"`
	// Timeout requests shutdown after this long; zero disables it.
	Timeout Duration `toml:"timeout"`
	// Farewell is printed on its own line once the loop exits.
	Farewell string `toml:"farewell"`
}

// WorkConfig selects the per-tick work unit.
type WorkConfig struct {
	// Kind is "print", "probe" or "none".
	Kind string `toml:"kind"`
	// Message is the line written by the print work unit.
	Message string `toml:"message"`
	// URL is the endpoint checked by the probe work unit.
	URL string `toml:"url,omitempty"`
	// RetryMax is how many times a failed probe is retried.
	RetryMax int `toml:"retry_max"`
	// RequestTimeout bounds one probe attempt.
	RequestTimeout Duration `toml:"request_timeout"`
}

// WatchConfig configures file-change ticks.
type WatchConfig struct {
	// Enabled adds the watch source to the loop.
	Enabled bool `toml:"enabled"`
	// Paths are files or directories to watch, relative to the data directory
	// unless absolute.
	Paths []string `toml:"paths"`
	// Include limits events to paths matching one of these globs.
	Include []string `toml:"include"`
	// Exclude drops events for paths matching any of these globs.
	Exclude []string `toml:"exclude"`
	// PollInterval is used when native notifications are unavailable.
	PollInterval Duration `toml:"poll_interval"`
}

// ControlConfig configures the control endpoint.
type ControlConfig struct {
	// Enabled starts the endpoint with the loop.
	Enabled bool `toml:"enabled"`
	// Address overrides the platform default socket or pipe.
	Address string `toml:"address,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// File is the log path relative to the data directory, or "-" for stderr.
	File string `toml:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Duration
// ///////////////////////////////////////////////

// Duration is a time.Duration stored in TOML as a string such as "1s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string is zero.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// Work kinds.
const (
	WorkPrint = "print"
	WorkProbe = "probe"
	WorkNone  = "none"
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Loop: LoopConfig{
			Period:            Duration{time.Second},
			InterruptCapacity: interrupt.DefaultCapacity,
			Farewell:          "Goodbye!",
		},
		Work: WorkConfig{
			Kind:           WorkPrint,
			Message:        "working!",
			RetryMax:       2,
			RequestTimeout: Duration{5 * time.Second},
		},
		Watch: WatchConfig{
			Paths:        []string{},
			Include:      []string{},
			Exclude:      []string{},
			PollInterval: Duration{watch.DefaultPollInterval},
		},
		Control: ControlConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:     "info",
			File:      paths.LogFile,
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml. A missing file yields DefaultConfig.
func Load(dataDir string) (*Config, error) {
	return LoadFile(filepath.Join(dataDir, paths.ConfigFile))
}

// LoadFile reads, migrates and validates the config at path. An outdated
// file is backed up to path+".bak" and rewritten at the current version.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	migrated := migrate.Config.NeedsMigration(version)
	if migrated {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
	}
	data, _, err = migrate.Config.Run(data, version)
	if err != nil {
		return nil, fmt.Errorf("migrate config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Parse decodes current-version TOML over DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	})
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Loop.Period.Duration <= 0 {
		return fmt.Errorf("loop.period must be > 0, got %s", c.Loop.Period)
	}
	if c.Loop.InterruptCapacity < 1 {
		return fmt.Errorf("loop.interrupt_capacity must be >= 1, got %d", c.Loop.InterruptCapacity)
	}
	if c.Loop.Timeout.Duration < 0 {
		return fmt.Errorf("loop.timeout must be >= 0, got %s", c.Loop.Timeout)
	}

	switch c.Work.Kind {
	case WorkPrint, WorkNone:
	case WorkProbe:
		u, err := url.Parse(c.Work.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid work.url %q: probe needs an absolute http(s) URL", c.Work.URL)
		}
	default:
		return fmt.Errorf("invalid work.kind %q: must be print, probe, or none", c.Work.Kind)
	}
	if c.Work.RetryMax < 0 {
		return fmt.Errorf("work.retry_max must be >= 0, got %d", c.Work.RetryMax)
	}
	if c.Work.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("work.request_timeout must be > 0, got %s", c.Work.RequestTimeout)
	}

	if c.Watch.Enabled && len(c.Watch.Paths) == 0 {
		return fmt.Errorf("watch.paths must not be empty when watch is enabled")
	}
	if err := watch.ValidatePatterns(c.Watch.Include); err != nil {
		return fmt.Errorf("watch.include: %w", err)
	}
	if err := watch.ValidatePatterns(c.Watch.Exclude); err != nil {
		return fmt.Errorf("watch.exclude: %w", err)
	}
	if c.Watch.PollInterval.Duration <= 0 {
		return fmt.Errorf("watch.poll_interval must be > 0, got %s", c.Watch.PollInterval)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}
