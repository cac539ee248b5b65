// Package config provides configuration loading and defaults for assetpipe.
//
// Configuration is read from assetpipe.toml in the project root, or from
// assetpipe.yaml when no TOML file exists. A project without either file
// builds with [DefaultConfig].
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"tools.zach/dev/assetpipe/internal/fsutil"
	"tools.zach/dev/assetpipe/internal/paths"
)

// CurrentVersion is the config schema version this build understands.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Mode
// ///////////////////////////////////////////////

// Mode selects between the development and production pipelines. It is
// decided once by the entry point and handed to every task by value.
type Mode int

const (
	// Production minifies, prefixes and optimizes. It is the zero value.
	Production Mode = iota
	// Development skips minification and emits source maps.
	Development
)

// IsDev reports whether m is Development.
func (m Mode) IsDev() bool { return m == Development }

func (m Mode) String() string {
	if m == Development {
		return "development"
	}
	return "production"
}

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level project configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version" yaml:"version"`
	// Server holds development server settings.
	Server ServerConfig `toml:"server" yaml:"server"`
	// Styles holds SCSS compilation and prefixing settings.
	Styles StylesConfig `toml:"styles" yaml:"styles"`
	// Scripts holds JavaScript bundling settings.
	Scripts ScriptsConfig `toml:"scripts" yaml:"scripts"`
	// Images holds raster and WebP encoding settings.
	Images ImagesConfig `toml:"images" yaml:"images"`
	// Watch holds file watcher settings.
	Watch WatchConfig `toml:"watch" yaml:"watch"`
	// Log holds logging settings.
	Log LogConfig `toml:"log" yaml:"log"`
}

// ServerConfig holds development server settings.
type ServerConfig struct {
	// Host is the interface the server binds to.
	Host string `toml:"host" yaml:"host"`
	// Port is the TCP port the server listens on.
	Port int `toml:"port" yaml:"port"`
	// LiveReload enables the websocket reload channel and script injection.
	LiveReload bool `toml:"live_reload" yaml:"live_reload"`
}

// StylesConfig holds SCSS compilation and prefixing settings.
type StylesConfig struct {
	// SassBinary is the Dart Sass executable speaking the embedded protocol.
	SassBinary string `toml:"sass_binary" yaml:"sass_binary"`
	// IncludePaths are extra directories searched by @use and @import.
	IncludePaths []string `toml:"include_paths" yaml:"include_paths"`
	// Targets lists the browsers vendor prefixes are generated for.
	Targets []string `toml:"targets" yaml:"targets"`
}

// ScriptsConfig holds JavaScript bundling settings.
type ScriptsConfig struct {
	// Target is the ECMAScript version production bundles are lowered to.
	Target string `toml:"target" yaml:"target"`
}

// ImagesConfig holds raster and WebP encoding settings.
type ImagesConfig struct {
	// JPEGQuality is the quality used when re-encoding JPEGs in production.
	JPEGQuality int `toml:"jpeg_quality" yaml:"jpeg_quality"`
	// WebPQuality is the WebP quality used in production.
	WebPQuality int `toml:"webp_quality" yaml:"webp_quality"`
	// WebPDevQuality is the WebP quality used in development.
	WebPDevQuality int `toml:"webp_dev_quality" yaml:"webp_dev_quality"`
}

// WatchConfig holds file watcher settings.
type WatchConfig struct {
	// DebounceMS is how long a category waits after a change before rebuilding.
	DebounceMS int `toml:"debounce_ms" yaml:"debounce_ms"`
	// PollIntervalMS is the polling interval used when native events are unavailable.
	PollIntervalMS int `toml:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level" yaml:"level"`
	// File is an optional log file, relative to the project root.
	File string `toml:"file,omitempty" yaml:"file,omitempty"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb" yaml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:       "localhost",
			Port:       3000,
			LiveReload: true,
		},
		Styles: StylesConfig{
			SassBinary:   "sass",
			IncludePaths: []string{},
			Targets:      []string{"chrome58", "edge16", "firefox57", "safari11"},
		},
		Scripts: ScriptsConfig{
			Target: "es2015",
		},
		Images: ImagesConfig{
			JPEGQuality:    80,
			WebPQuality:    70,
			WebPDevQuality: 100,
		},
		Watch: WatchConfig{
			DebounceMS:     100,
			PollIntervalMS: 1000,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads the configuration for the project rooted at root. The TOML
// file wins over the YAML one. If neither exists, returns DefaultConfig.
func Load(root string) (*Config, error) {
	p := paths.Project{Root: root}

	cfg, err := LoadFile(p.Config())
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	cfg, err = LoadFile(p.ConfigYAML())
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// LoadFile parses a single config file. The format is chosen by extension;
// anything that is not .yaml or .yml is read as TOML. Keys absent from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return fsutil.WriteFile(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// validScriptTargets is the set of accepted scripts.target values.
var validScriptTargets = map[string]bool{
	"es2015": true, "es2016": true, "es2017": true, "es2018": true, "es2019": true,
	"es2020": true, "es2021": true, "es2022": true, "es2023": true, "es2024": true,
	"esnext": true,
}

// browserTargetRe matches an engine name followed by a version, e.g. "safari11" or "ios12.2".
var browserTargetRe = regexp.MustCompile(`^(chrome|edge|firefox|ie|ios|opera|safari)[0-9]+(\.[0-9]+)*$`)

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Version > CurrentVersion {
		return fmt.Errorf("config version %d is newer than supported version %d", c.Version, CurrentVersion)
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Styles.SassBinary == "" {
		return fmt.Errorf("styles.sass_binary must not be empty")
	}

	for _, t := range c.Styles.Targets {
		if !browserTargetRe.MatchString(strings.ToLower(t)) {
			return fmt.Errorf("invalid styles.targets entry %q: must be a browser name followed by a version (e.g. safari11)", t)
		}
	}

	if !validScriptTargets[strings.ToLower(c.Scripts.Target)] {
		return fmt.Errorf("invalid scripts.target %q: must be es2015 through es2024 or esnext", c.Scripts.Target)
	}

	for _, q := range []struct {
		name  string
		value int
	}{
		{"images.jpeg_quality", c.Images.JPEGQuality},
		{"images.webp_quality", c.Images.WebPQuality},
		{"images.webp_dev_quality", c.Images.WebPDevQuality},
	} {
		if q.value < 1 || q.value > 100 {
			return fmt.Errorf("%s must be between 1 and 100, got %d", q.name, q.value)
		}
	}

	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must be >= 0, got %d", c.Watch.DebounceMS)
	}

	if c.Watch.PollIntervalMS <= 0 {
		return fmt.Errorf("watch.poll_interval_ms must be > 0, got %d", c.Watch.PollIntervalMS)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// Addr returns the host:port the development server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
