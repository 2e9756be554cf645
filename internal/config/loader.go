package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "LIVEBRIDGE_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a file, applies LIVEBRIDGE_* environment
// overrides and defaults, then validates the result. An empty path runs on
// defaults plus the environment.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
			if _, err := os.Stat(absPath); err != nil {
				return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
			}
		}

		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
		cfg.SourceFile = absPath
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds a config file by checking standard locations.
// Priority order: $LIVEBRIDGE_CONFIG, ~/.config/livebridge/config.yaml, ./livebridge.yaml.
// It returns "" when none exist, which Load treats as defaults.
func Discover() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "livebridge", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig
		}
	}
	if _, err := os.Stat("./livebridge.yaml"); err == nil {
		return "./livebridge.yaml"
	}
	return ""
}

// loadConfigFile parses a single YAML file over cfg. Keys absent from the
// file keep their current values; unknown keys are rejected.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyEnvOverrides copies set LIVEBRIDGE_* variables onto cfg. Unset
// variables leave the file or default value in place.
func applyEnvOverrides(cfg *Config) error {
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseEnvDuration,
		},
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// parseEnvDuration accepts a Go duration ("90s", "2m") or a bare number of
// seconds ("120", "120.0").
func parseEnvDuration(v string) (any, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return nil, fmt.Errorf("invalid duration %q: want a Go duration such as 90s or a number of seconds", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.TickInterval == 0 {
		cfg.Service.TickInterval = defaults.Service.TickInterval
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.PIDDir == "" {
		cfg.Service.PIDDir = defaults.Service.PIDDir
	}

	if cfg.Host.Address == "" {
		cfg.Host.Address = defaults.Host.Address
	}
	if cfg.Host.Port == 0 {
		cfg.Host.Port = defaults.Host.Port
	}
	if cfg.Host.Greeting == "" {
		cfg.Host.Greeting = cfg.Service.Name + " ready"
	}
	if cfg.Host.MaxFrameSize == 0 {
		cfg.Host.MaxFrameSize = defaults.Host.MaxFrameSize
	}
	if cfg.Host.WriteTimeout == 0 {
		cfg.Host.WriteTimeout = defaults.Host.WriteTimeout
	}

	c, d := &cfg.Client, defaults.Client
	if c.ReadOnlyTimeout == 0 {
		c.ReadOnlyTimeout = d.ReadOnlyTimeout
	}
	if c.MutatingTimeout == 0 {
		c.MutatingTimeout = d.MutatingTimeout
	}
	if c.LongRunningTimeout == 0 {
		c.LongRunningTimeout = d.LongRunningTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.GreetingTimeout == 0 {
		c.GreetingTimeout = d.GreetingTimeout
	}

	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = defaults.Bridge.Timeout
	}
	if cfg.Bridge.LongRunningTimeout == 0 {
		cfg.Bridge.LongRunningTimeout = defaults.Bridge.LongRunningTimeout
	}
	if cfg.Bridge.QueueSize == 0 {
		cfg.Bridge.QueueSize = defaults.Bridge.QueueSize
	}

	if cfg.Session.Tracks == 0 {
		cfg.Session.Tracks = defaults.Session.Tracks
	}
	if cfg.Session.Scenes == 0 {
		cfg.Session.Scenes = defaults.Session.Scenes
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Events.Capacity == 0 {
		cfg.Events.Capacity = defaults.Events.Capacity
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// interpolateEnv replaces ${VAR} with the variable's value. Unset variables
// keep their placeholder so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Host.Port < 1 || cfg.Host.Port > 65535 {
		return fmt.Errorf("host.port must be between 1 and 65535 (got %d)", cfg.Host.Port)
	}
	if cfg.Host.MaxFrameSize < 64 {
		return fmt.Errorf("host.max_frame_size must be at least 64 bytes (got %d)", cfg.Host.MaxFrameSize)
	}
	if cfg.Host.WriteTimeout < 0 {
		return fmt.Errorf("host.write_timeout must not be negative")
	}

	for name, d := range map[string]int64{
		"client.read_only_timeout":    int64(cfg.Client.ReadOnlyTimeout),
		"client.mutating_timeout":     int64(cfg.Client.MutatingTimeout),
		"client.long_running_timeout": int64(cfg.Client.LongRunningTimeout),
		"bridge.timeout":              int64(cfg.Bridge.Timeout),
		"bridge.long_running_timeout": int64(cfg.Bridge.LongRunningTimeout),
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.Bridge.LongRunningTimeout < cfg.Bridge.Timeout {
		return fmt.Errorf("bridge.long_running_timeout (%s) must not be shorter than bridge.timeout (%s)",
			cfg.Bridge.LongRunningTimeout, cfg.Bridge.Timeout)
	}
	if cfg.Bridge.QueueSize < 0 {
		return fmt.Errorf("bridge.queue_size must not be negative")
	}

	if cfg.Session.Tracks < 0 || cfg.Session.Scenes < 0 {
		return fmt.Errorf("session.tracks and session.scenes must not be negative")
	}
	if cfg.Session.BrowserDelay < 0 {
		return fmt.Errorf("session.browser_delay must not be negative")
	}

	if cfg.Journal.Enabled && cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}
	if cfg.Events.Capacity < 0 {
		return fmt.Errorf("events.capacity must not be negative")
	}

	for field, value := range map[string]string{
		"host.address":    cfg.Host.Address,
		"host.greeting":   cfg.Host.Greeting,
		"service.pid_dir": cfg.Service.PIDDir,
		"journal.path":    cfg.Journal.Path,
		"api.listen":      cfg.API.Listen,
		"api.token":       cfg.API.Token,
	} {
		if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
			return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
		}
	}

	return nil
}
