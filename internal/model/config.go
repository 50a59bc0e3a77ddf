package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig locates the dabir web application.
type ServerConfig struct {
	// Origin is the scheme and host of the web application, e.g.
	// "https://dabir.example.org". The push endpoint is derived from it.
	Origin string `mapstructure:"origin" yaml:"origin"`

	// APIPrefix is prepended to every REST path.
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix"`

	// RequestTimeoutSec bounds each REST request.
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
}

// PushConfig holds push channel tuning.
type PushConfig struct {
	ReconnectDelayMs int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	EventLogCap      int `mapstructure:"event_log_cap" yaml:"event_log_cap"`
}

// ToastConfig holds toast lifecycle timings.
type ToastConfig struct {
	VisibleMs int `mapstructure:"visible_ms" yaml:"visible_ms"`
	ExitMs    int `mapstructure:"exit_ms" yaml:"exit_ms"`
}

// DesktopConfig controls native desktop notifications.
type DesktopConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// CacheConfig locates the local sqlite cache.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Toast   ToastConfig   `mapstructure:"toast" yaml:"toast"`
	Desktop DesktopConfig `mapstructure:"desktop" yaml:"desktop"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ReconnectDelay returns the fixed push reconnect delay.
func (c *AppConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.Push.ReconnectDelayMs) * time.Millisecond
}

// ToastVisible returns how long a toast stays visible before dismissing.
func (c *AppConfig) ToastVisible() time.Duration {
	return time.Duration(c.Toast.VisibleMs) * time.Millisecond
}

// ToastExit returns the exit window between dismissing and removal.
func (c *AppConfig) ToastExit() time.Duration {
	return time.Duration(c.Toast.ExitMs) * time.Millisecond
}

// RequestTimeout returns the per-request REST timeout.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// configDir returns ~/.config/dabir, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dabir")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/dabir/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Origin:            "http://localhost:8000",
			APIPrefix:         "/api",
			RequestTimeoutSec: 15,
		},
		Push: PushConfig{
			ReconnectDelayMs: 5000,
			EventLogCap:      100,
		},
		Toast: ToastConfig{
			VisibleMs: 5000,
			ExitMs:    300,
		},
		Display: DisplayConfig{Theme: "default"},
		Cache:   CacheConfig{Path: filepath.Join(configDir(), "cache.db")},
		Log: LogConfig{
			Path:  filepath.Join(configDir(), "dabir.log"),
			Level: "info",
		},
	}
}

var envReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("server.origin", d.Server.Origin)
	v.SetDefault("server.api_prefix", d.Server.APIPrefix)
	v.SetDefault("server.request_timeout_sec", d.Server.RequestTimeoutSec)
	v.SetDefault("push.reconnect_delay_ms", d.Push.ReconnectDelayMs)
	v.SetDefault("push.event_log_cap", d.Push.EventLogCap)
	v.SetDefault("toast.visible_ms", d.Toast.VisibleMs)
	v.SetDefault("toast.exit_ms", d.Toast.ExitMs)
	v.SetDefault("desktop.enabled", d.Desktop.Enabled)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
// DABIR_* environment variables override file values.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("dabir")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Origin == "" {
		return errors.New("server.origin is required")
	}
	if c.Push.ReconnectDelayMs <= 0 {
		return fmt.Errorf("push.reconnect_delay_ms must be positive, got %d", c.Push.ReconnectDelayMs)
	}
	if c.Push.EventLogCap <= 0 {
		return fmt.Errorf("push.event_log_cap must be positive, got %d", c.Push.EventLogCap)
	}
	if c.Toast.VisibleMs < 0 || c.Toast.ExitMs < 0 {
		return errors.New("toast timings must not be negative")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("push", cfg.Push)
	v.Set("toast", cfg.Toast)
	v.Set("desktop", cfg.Desktop)
	v.Set("display", cfg.Display)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
