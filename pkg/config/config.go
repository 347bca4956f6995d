// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads slotsave configuration from defaults, an optional
// YAML file (plus profile overlay), SLOTSAVE_* environment variables and
// command-line overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SLOTSAVE_"

type Config struct {
	Save      Save            `koanf:"save"`
	Storage   StorageConfig   `koanf:"storage"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// Save is the value handed to the slot manager.
type Save struct {
	BaseDir   string `koanf:"base_dir"`
	Folder    string `koanf:"folder"`
	Extension string `koanf:"extension"`
	Debug     bool   `koanf:"debug"`
	Codec     string `koanf:"codec"` // json, yaml, proto
}

// Dir returns {base_dir}/{folder}.
func (s Save) Dir() string {
	return filepath.Join(s.BaseDir, s.Folder)
}

type StorageConfig struct {
	Backend    string `koanf:"backend"` // file, sqlite
	SQLitePath string `koanf:"sqlite_path"`
	// RetryAttempts bounds attempts for transient storage failures; 1 disables retries.
	RetryAttempts int `koanf:"retry_attempts"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp, otlp-http
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile loads path and then overlays {name}.{profile}{ext} from the
// same directory when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI understands --config, --profile (alias --env) and repeated
// --set key=value flags. Flags may use the --flag=value form.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

func load(path, profile string, overrides map[string]string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		if profile != "" {
			profilePath := profileFile(path, profile)
			if _, err := os.Stat(profilePath); err == nil {
				if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("config: load %s: %w", profilePath, err)
				}
			}
		}
	}

	// SLOTSAVE_SAVE_BASE_DIR -> save.base_dir
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config: override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Save.Dir(), "slots.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("save.base_dir", defaultBaseDir())
	k.Set("save.folder", "saves")
	k.Set("save.extension", ".sav")
	k.Set("save.debug", true)
	k.Set("save.codec", "json")

	k.Set("storage.backend", "file")
	k.Set("storage.retry_attempts", 3)

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.otlp_insecure", true)
}

func defaultBaseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "."
	}
	return filepath.Join(dir, "slotsave")
}

// Validate rejects configurations the slot manager cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Save.Folder) == "" {
		return fmt.Errorf("config: save.folder is required")
	}
	if !strings.HasPrefix(c.Save.Extension, ".") || len(c.Save.Extension) < 2 {
		return fmt.Errorf("config: save.extension must start with '.', got %q", c.Save.Extension)
	}
	if c.Storage.RetryAttempts < 0 {
		return fmt.Errorf("config: storage.retry_attempts must not be negative")
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

func profileFile(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]string, error) {
	var opts cliOptions
	overrides := make(map[string]string)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("config: missing value for %s", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, v, ok := strings.Cut(value, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, nil, fmt.Errorf("config: invalid --set %q, want key=value", value)
			}
			overrides[strings.TrimSpace(key)] = v
		}
	}
	return opts, overrides, nil
}
