// Package config loads the layered server configuration: built-in defaults,
// an optional YAML file, then TTLGATE_* environment overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biferdou/ttlgate/common/tracking"
)

// Environment variable names for configuration overrides.
const (
	EnvHost            = "TTLGATE_HOST"
	EnvPort            = "TTLGATE_PORT"
	EnvCertPath        = "TTLGATE_CERT_PATH"
	EnvKeyPath         = "TTLGATE_KEY_PATH"
	EnvDefaultTTL      = "TTLGATE_DEFAULT_TTL"
	EnvMaxTTL          = "TTLGATE_MAX_TTL"
	EnvCleanupInterval = "TTLGATE_CLEANUP_INTERVAL"
	EnvMaxTracked      = "TTLGATE_MAX_TRACKED_CONNECTIONS"
	EnvLogLevel        = "TTLGATE_LOG_LEVEL"
	EnvLogFormat       = "TTLGATE_LOG_FORMAT"
)

// ServerConfig configures the listener and the request rate limiter.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RequestTimeoutSecs int64  `yaml:"request_timeout_secs"`

	// RateLimitPerSec caps accepted requests per second; zero disables
	// rate limiting. Burst defaults to 10x the rate.
	RateLimitPerSec int `yaml:"rate_limit_per_sec"`
	RateBurst       int `yaml:"rate_burst"`
}

// SSLConfig locates the certificate pair and paces the validity checks.
type SSLConfig struct {
	CertPath              string `yaml:"cert_path"`
	KeyPath               string `yaml:"key_path"`
	CertCheckIntervalSecs int64  `yaml:"cert_check_interval_secs"`
}

// TrackingSection configures the connection registry.
type TrackingSection struct {
	DefaultTTLSecs        int64 `yaml:"default_ttl_secs"`
	MaxTTLSecs            int64 `yaml:"max_ttl_secs"`
	CleanupIntervalSecs   int64 `yaml:"cleanup_interval_secs"`
	MaxTrackedConnections int   `yaml:"max_tracked_connections"`
}

// LogConfig configures level and output format ("json" or "console").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the resolved process configuration, immutable after Load.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	SSL      SSLConfig       `yaml:"ssl"`
	Tracking TrackingSection `yaml:"tracking"`
	Log      LogConfig       `yaml:"log"`
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (*AppConfig, error) {
	cfg := new(AppConfig)

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8443
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 30
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = cfg.Server.RateLimitPerSec * 10
	}
	if cfg.SSL.CertCheckIntervalSecs == 0 {
		cfg.SSL.CertCheckIntervalSecs = 3600
	}
	if cfg.Tracking.DefaultTTLSecs == 0 {
		cfg.Tracking.DefaultTTLSecs = int64(tracking.DefaultTTL / time.Second)
	}
	if cfg.Tracking.MaxTTLSecs == 0 {
		cfg.Tracking.MaxTTLSecs = int64(tracking.DefaultMaxTTL / time.Second)
	}
	if cfg.Tracking.CleanupIntervalSecs == 0 {
		cfg.Tracking.CleanupIntervalSecs = int64(tracking.DefaultCleanupInterval / time.Second)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	cfg.Server.Host = getEnvString(EnvHost, cfg.Server.Host)
	cfg.Server.Port = getEnvInt(EnvPort, cfg.Server.Port)
	cfg.SSL.CertPath = getEnvString(EnvCertPath, cfg.SSL.CertPath)
	cfg.SSL.KeyPath = getEnvString(EnvKeyPath, cfg.SSL.KeyPath)
	cfg.Tracking.DefaultTTLSecs = getEnvDurationSecs(EnvDefaultTTL, cfg.Tracking.DefaultTTLSecs)
	cfg.Tracking.MaxTTLSecs = getEnvDurationSecs(EnvMaxTTL, cfg.Tracking.MaxTTLSecs)
	cfg.Tracking.CleanupIntervalSecs = getEnvDurationSecs(EnvCleanupInterval, cfg.Tracking.CleanupIntervalSecs)
	cfg.Tracking.MaxTrackedConnections = getEnvInt(EnvMaxTracked, cfg.Tracking.MaxTrackedConnections)
	cfg.Log.Level = getEnvString(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = getEnvString(EnvLogFormat, cfg.Log.Format)
}

// Validate rejects configurations the process must not start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port out of range: %d", c.Server.Port)
	}
	if c.Server.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	if c.SSL.CertPath == "" {
		return fmt.Errorf("config: ssl cert_path is required")
	}
	if c.SSL.KeyPath == "" {
		return fmt.Errorf("config: ssl key_path is required")
	}
	if c.SSL.CertCheckIntervalSecs <= 0 {
		return fmt.Errorf("config: cert check interval must be positive")
	}
	return c.TrackingConfig().Validate()
}

// Addr returns the listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// RequestTimeout returns the per-request read/write timeout.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// CertCheckInterval returns the certificate monitoring period.
func (c *AppConfig) CertCheckInterval() time.Duration {
	return time.Duration(c.SSL.CertCheckIntervalSecs) * time.Second
}

// TrackingConfig converts the tracking section into the registry's config.
func (c *AppConfig) TrackingConfig() tracking.Config {
	return tracking.Config{
		DefaultTTL:            time.Duration(c.Tracking.DefaultTTLSecs) * time.Second,
		MaxTTL:                time.Duration(c.Tracking.MaxTTLSecs) * time.Second,
		CleanupInterval:       time.Duration(c.Tracking.CleanupIntervalSecs) * time.Second,
		MaxTrackedConnections: c.Tracking.MaxTrackedConnections,
	}
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvDurationSecs parses either a duration string ("5m") or a plain
// number of seconds.
func getEnvDurationSecs(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return int64(d / time.Second)
	}
	if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
		return secs
	}
	return defaultVal
}
