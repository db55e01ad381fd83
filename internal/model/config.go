package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RemoteConfig selects and configures the remote persistence backend.
type RemoteConfig struct {
	// Driver is "http" for the REST API, or "sqlite"/"postgres" to talk to
	// a database directly.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// BaseURL is the root URL of the REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// DSN is the database connection string for the sql drivers.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// TimeoutSec bounds a single remote request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// FeedConfig selects the realtime change-feed transport.
type FeedConfig struct {
	// Kind is one of "hub", "redis", "postgres" or "websocket".
	Kind string `mapstructure:"kind" yaml:"kind"`

	// RedisAddr is the redis server address for the redis feed.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`

	// Channel is the redis or postgres notification channel.
	Channel string `mapstructure:"channel" yaml:"channel"`

	// URL is the websocket endpoint for the websocket feed.
	URL string `mapstructure:"url" yaml:"url"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	// ReloadIntervalSec is the period of the fallback full reload.
	ReloadIntervalSec int `mapstructure:"reload_interval_sec" yaml:"reload_interval_sec"`

	// GraceWindowMs is how long a local optimistic write shadows feed events.
	GraceWindowMs int `mapstructure:"grace_window_ms" yaml:"grace_window_ms"`

	// WriteQueueSize is the capacity of the remote write queue.
	WriteQueueSize int `mapstructure:"write_queue_size" yaml:"write_queue_size"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	UserID    string       `mapstructure:"user_id" yaml:"user_id"`
	StatePath string       `mapstructure:"state_path" yaml:"state_path"`
	Remote    RemoteConfig `mapstructure:"remote" yaml:"remote"`
	Feed      FeedConfig   `mapstructure:"feed" yaml:"feed"`
	Sync      SyncConfig   `mapstructure:"sync" yaml:"sync"`
	Server    ServerConfig `mapstructure:"server" yaml:"server"`
}

// ReloadInterval returns the fallback reload period.
func (c SyncConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalSec) * time.Second
}

// GraceWindow returns the optimistic grace window.
func (c SyncConfig) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowMs) * time.Millisecond
}

// Timeout returns the per-request remote timeout.
func (c RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/workera/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "workera", "config.yaml")
}

// DefaultStatePath returns the default location of the client-local state.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "state.yaml")
	}
	return filepath.Join(home, ".config", "workera", "state.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		StatePath: DefaultStatePath(),
		Remote: RemoteConfig{
			Driver:     "http",
			BaseURL:    "http://127.0.0.1:8080",
			TimeoutSec: 15,
		},
		Feed: FeedConfig{
			Kind:    "websocket",
			Channel: "workera_changes",
			URL:     "ws://127.0.0.1:8080/realtime",
		},
		Sync: SyncConfig{
			ReloadIntervalSec: 60,
			GraceWindowMs:     3000,
			WriteQueueSize:    256,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("state_path", d.StatePath)
	v.SetDefault("remote.driver", d.Remote.Driver)
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.timeout_sec", d.Remote.TimeoutSec)
	v.SetDefault("feed.kind", d.Feed.Kind)
	v.SetDefault("feed.channel", d.Feed.Channel)
	v.SetDefault("feed.url", d.Feed.URL)
	v.SetDefault("sync.reload_interval_sec", d.Sync.ReloadIntervalSec)
	v.SetDefault("sync.grace_window_ms", d.Sync.GraceWindowMs)
	v.SetDefault("sync.write_queue_size", d.Sync.WriteQueueSize)
	v.SetDefault("server.addr", d.Server.Addr)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with WORKERA_ override file values. If the
// file does not exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WORKERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"user_id", "remote.dsn", "feed.redis_addr", "server.jwt_secret"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		_, missingFile := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !missingFile && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.ReloadIntervalSec <= 0 {
		cfg.Sync.ReloadIntervalSec = 60
	}
	if cfg.Sync.GraceWindowMs < 0 {
		cfg.Sync.GraceWindowMs = 0
	}
	if cfg.Sync.WriteQueueSize <= 0 {
		cfg.Sync.WriteQueueSize = 256
	}
	if cfg.Remote.TimeoutSec <= 0 {
		cfg.Remote.TimeoutSec = 15
	}

	return cfg, nil
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

	v.Set("user_id", cfg.UserID)
	v.Set("state_path", cfg.StatePath)
	v.Set("remote", cfg.Remote)
	v.Set("feed", cfg.Feed)
	v.Set("sync", cfg.Sync)
	v.Set("server", cfg.Server)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
