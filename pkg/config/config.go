// Package config provides YAML-based configuration loading for the package
// manager client.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config is the root client configuration.
type Config struct {
    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Service describes how to reach the package-manager service
    Service ServiceConfig `mapstructure:"service"`

    // Cache controls the local package record cache
    Cache CacheConfig `mapstructure:"cache"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    Rotation    RotationConfig `mapstructure:"rotation"`
    Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// ServiceConfig selects the transport and the connect budget.
type ServiceConfig struct {
    // Transport: winpipe, websocket or mem
    Transport string `mapstructure:"transport"`
    // Address is the pipe name or websocket URL ("mdns:" to discover)
    Address string `mapstructure:"address"`
    // ClientName is announced in start-session
    ClientName string `mapstructure:"client_name"`
    // SessionID is announced in start-session; empty = random per connect
    SessionID string `mapstructure:"session_id"`

    ConnectAttempts    int `mapstructure:"connect_attempts"`
    ConnectRetryMS     int `mapstructure:"connect_retry_ms"`
    HandshakeTimeoutMS int `mapstructure:"handshake_timeout_ms"`
    DiscoveryTimeoutMS int `mapstructure:"discovery_timeout_ms"`
}

// CacheConfig controls the package record cache.
type CacheConfig struct {
    // Format: cbor, json or proto
    Format   string `mapstructure:"format"`
    TTLSec   int    `mapstructure:"ttl_sec"`
    MaxBytes uint64 `mapstructure:"max_bytes"`
}

func (s ServiceConfig) RetryDelay() time.Duration { return time.Duration(s.ConnectRetryMS) * time.Millisecond }
func (s ServiceConfig) HandshakeTimeout() time.Duration { return time.Duration(s.HandshakeTimeoutMS) * time.Millisecond }
func (s ServiceConfig) DiscoveryTimeout() time.Duration { return time.Duration(s.DiscoveryTimeoutMS) * time.Millisecond }
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        Log: LogConfig{
            Level:   "info",
            Format:  "console",
            Outputs: []string{"stderr"},
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/pmclient.log",
                MaxSizeMB:  20,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Service: ServiceConfig{
            Transport:          "winpipe",
            Address:            `\\.\pipe\CoAppInstaller`,
            ClientName:         "pmctl",
            ConnectAttempts:    60,
            ConnectRetryMS:     500,
            HandshakeTimeoutMS: 10000,
            DiscoveryTimeoutMS: 5000,
        },
        Cache: CacheConfig{Format: "cbor", TTLSec: 0, MaxBytes: 64 << 20},
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix PMCLIENT and `.`/`-` are replaced with `_`.
// Example: PMCLIENT_SERVICE_TRANSPORT=websocket
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("PMCLIENT")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("service.transport", cfg.Service.Transport)
    v.SetDefault("service.address", cfg.Service.Address)
    v.SetDefault("service.client_name", cfg.Service.ClientName)
    v.SetDefault("service.session_id", cfg.Service.SessionID)
    v.SetDefault("service.connect_attempts", cfg.Service.ConnectAttempts)
    v.SetDefault("service.connect_retry_ms", cfg.Service.ConnectRetryMS)
    v.SetDefault("service.handshake_timeout_ms", cfg.Service.HandshakeTimeoutMS)
    v.SetDefault("service.discovery_timeout_ms", cfg.Service.DiscoveryTimeoutMS)
    v.SetDefault("cache.format", cfg.Cache.Format)
    v.SetDefault("cache.ttl_sec", cfg.Cache.TTLSec)
    v.SetDefault("cache.max_bytes", cfg.Cache.MaxBytes)

    if path == "" {
        if envPath := os.Getenv("PMCLIENT_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("pmclient")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".pmclient"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(&cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stderr"}
    }

    c.Service.Transport = strings.ToLower(strings.TrimSpace(c.Service.Transport))
    switch c.Service.Transport {
    case "", "winpipe", "pipe", "ws", "websocket", "mem", "inproc":
    default:
        return fmt.Errorf("invalid service.transport: %q", c.Service.Transport)
    }
    if strings.TrimSpace(c.Service.ClientName) == "" {
        c.Service.ClientName = "pmctl"
    }
    if c.Service.ConnectAttempts <= 0 {
        return fmt.Errorf("service.connect_attempts must be positive, got %d", c.Service.ConnectAttempts)
    }
    if c.Service.ConnectRetryMS < 0 {
        return fmt.Errorf("service.connect_retry_ms must not be negative")
    }

    switch strings.ToLower(c.Cache.Format) {
    case "", "cbor", "json", "proto", "protobuf":
    default:
        return fmt.Errorf("invalid cache.format: %q", c.Cache.Format)
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
