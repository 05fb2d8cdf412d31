package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deskfs/deskfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration for the sandbox filesystem.
type Config struct {
	LogLvl util.LogLevel // Log verbosity (Default info)

	Listen       string        // HTTP API listen address (Default 127.0.0.1:8090)
	StatePath    string        // Snapshot file path (Default deskfs-state.json)
	SaveDebounce time.Duration // Quiet period before a snapshot save fires (Default 1.5s)
	PrimaryUser  string        // Protected default desktop account (Default "user")

	MountOptions MountOptions // Optional FUSE mount settings
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	LogLvl         *util.LogLevel `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Listen         *string        `yaml:"listen,omitempty" json:"listen,omitempty"`
	StatePath      *string        `yaml:"state_path,omitempty" json:"state_path,omitempty"`
	SaveDebounceMS *int           `yaml:"save_debounce_ms,omitempty" json:"save_debounce_ms,omitempty"`
	PrimaryUser    *string        `yaml:"primary_user,omitempty" json:"primary_user,omitempty"`

	MountDebug  *bool   `yaml:"mount_debug,omitempty" json:"mount_debug,omitempty"`
	MountFsName *string `yaml:"mount_fsname,omitempty" json:"mount_fsname,omitempty"`
	MountName   *string `yaml:"mount_name,omitempty" json:"mount_name,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		LogLvl:       util.InfoLevel,
		Listen:       DefaultListen,
		StatePath:    DefaultStatePath,
		SaveDebounce: DefaultSaveDebounceMS * time.Millisecond,
		PrimaryUser:  DefaultPrimaryUser,
		MountOptions: MountOptions{
			FsName: "deskfs",
			Name:   "deskfs",
		},
	}
}

// NewConfig creates a Config from defaults merged with an optional override.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = *override.LogLvl
	}
	if override.Listen != nil {
		c.Listen = *override.Listen
	}
	if override.StatePath != nil {
		c.StatePath = *override.StatePath
	}
	if override.SaveDebounceMS != nil {
		c.SaveDebounce = time.Duration(*override.SaveDebounceMS) * time.Millisecond
	}
	if override.PrimaryUser != nil {
		c.PrimaryUser = *override.PrimaryUser
	}
	if override.MountDebug != nil {
		c.MountOptions.Debug = *override.MountDebug
	}
	if override.MountFsName != nil {
		c.MountOptions.FsName = *override.MountFsName
	}
	if override.MountName != nil {
		c.MountOptions.Name = *override.MountName
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
