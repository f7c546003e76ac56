// Package config loads gitmarks configuration.
//
// Configuration is read from a YAML or TOML file and overridden by
// GITMARKS_* environment variables (GITMARKS_REMOTE_BRANCH overrides
// remote.branch). Every key has a default, so an empty file is a valid
// configuration for the in-memory backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "GITMARKS"

// Config is the complete gitmarks configuration.
type Config struct {
	// Profile names this bookmark collection in the state database and in
	// commit messages.
	Profile string `mapstructure:"profile" yaml:"profile" validate:"required"`

	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Host      HostConfig      `mapstructure:"host" yaml:"host"`
	State     StateConfig     `mapstructure:"state" yaml:"state"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// RemoteConfig selects and configures the Git object store.
type RemoteConfig struct {
	// Backend is github, git (a local repository through the git binary)
	// or memory (volatile, for trying things out).
	Backend string `mapstructure:"backend" yaml:"backend" validate:"required,oneof=github git memory"`

	Branch string `mapstructure:"branch" yaml:"branch" validate:"required"`

	// BasePath is the directory inside the repository holding bookmarks.
	BasePath string `mapstructure:"base_path" yaml:"base_path" validate:"required"`

	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1,lte=64"`

	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
	Git    GitConfig    `mapstructure:"git" yaml:"git"`
}

// GitHubConfig configures the GitHub REST backend.
type GitHubConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Owner   string        `mapstructure:"owner" yaml:"owner"`
	Repo    string        `mapstructure:"repo" yaml:"repo"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// GitConfig configures the local repository backend.
type GitConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Init creates a bare repository at Path when none exists.
	Init        bool   `mapstructure:"init" yaml:"init"`
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email" validate:"omitempty,email"`
}

// SyncConfig tunes the orchestrator and the auto-sync daemon.
type SyncConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce" validate:"gt=0"`
	MaxWait        time.Duration `mapstructure:"max_wait" yaml:"max_wait" validate:"gtefield=Debounce"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gte=0"`
	SuppressWindow time.Duration `mapstructure:"suppress_window" yaml:"suppress_window" validate:"gte=0"`
	SyncOnStart    bool          `mapstructure:"sync_on_start" yaml:"sync_on_start"`
}

// HostConfig locates the local bookmark document.
type HostConfig struct {
	// Path of the document; the extension selects json, yaml or toml.
	Path  string `mapstructure:"path" yaml:"path" validate:"required"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// StateConfig locates the sync state database.
type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`

	// Output is stderr, stdout, or a file path rotated by size.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`

	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// DashboardConfig controls the live status server of the daemon.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host" validate:"required"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

// Load reads configuration from configPath, or from config.{yaml,toml} in
// the config directory when configPath is empty. A missing default file is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	setDefaults(v)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are plain scalars and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(GetConfigDir())
		v.SetConfigName("config")
	}
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configPath == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// GetConfigDir returns the directory searched for config.yaml.
func GetConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gitmarks")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gitmarks")
}

// GetDataDir returns the directory holding the state database and the
// default bookmark document.
func GetDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "gitmarks")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "gitmarks")
}

// GetDefaultConfigPath returns the path Load reads when given none.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Remote.GitHub.Token != "" {
		out.Remote.GitHub.Token = "********"
	}
	return &out
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(data), nil
}
