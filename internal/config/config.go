package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rusty-ci/rusty-tui/internal/subscription"
)

const (
	ReconnectConstant    = "constant"
	ReconnectExponential = "exponential"
)

type Config struct {
	Endpoint       string          `mapstructure:"endpoint" yaml:"endpoint"`
	WebsocketURL   string          `mapstructure:"ws-url" yaml:"ws-url"`
	Token          string          `mapstructure:"token" yaml:"token,omitempty"`
	AckTimeout     time.Duration   `mapstructure:"ack-timeout" yaml:"ack-timeout"`
	RequestTimeout time.Duration   `mapstructure:"request-timeout" yaml:"request-timeout"`
	Reconnect      ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Cache          CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Log            LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics        MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

type ReconnectConfig struct {
	Strategy string        `mapstructure:"strategy" yaml:"strategy"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
	MaxDelay time.Duration `mapstructure:"max-delay" yaml:"max-delay"`
}

type CacheConfig struct {
	Dir    string        `mapstructure:"dir" yaml:"dir"`
	SizeMB int           `mapstructure:"size-mb" yaml:"size-mb"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Endpoint:       "http://localhost:8000/graphql",
		WebsocketURL:   "ws://localhost:8000/ws",
		AckTimeout:     10 * time.Second,
		RequestTimeout: 15 * time.Second,
		Reconnect: ReconnectConfig{
			Strategy: ReconnectConstant,
			Delay:    subscription.DefaultReconnectDelay,
			MaxDelay: 30 * time.Second,
		},
		Cache: CacheConfig{
			Dir:    DefaultCacheDir(),
			SizeMB: 500,
			TTL:    24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
			File:  DefaultLogFile(),
		},
	}
}

// DefaultCacheDir is where finished pipeline logs are kept.
func DefaultCacheDir() string {
	return filepath.Join(userDir(os.UserCacheDir), "rusty-tui", "logs")
}

// DefaultLogFile keeps diagnostics out of the terminal the TUI draws on.
func DefaultLogFile() string {
	return filepath.Join(userDir(os.UserCacheDir), "rusty-tui", "rusty-tui.log")
}

// DefaultConfigPath returns the config file read when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(userDir(os.UserConfigDir), "rusty-tui", "config.yaml")
}

func userDir(fn func() (string, error)) string {
	dir, err := fn()
	if err != nil || dir == "" {
		return os.TempDir()
	}
	return dir
}

func (c Config) Validate() error {
	if err := validateURL("endpoint", c.Endpoint, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("ws-url", c.WebsocketURL, "ws", "wss"); err != nil {
		return err
	}
	switch c.Reconnect.Strategy {
	case ReconnectConstant, ReconnectExponential:
	default:
		return fmt.Errorf("reconnect.strategy must be %q or %q, got %q",
			ReconnectConstant, ReconnectExponential, c.Reconnect.Strategy)
	}
	if c.Reconnect.Delay <= 0 {
		return fmt.Errorf("reconnect.delay must be positive")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack-timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be positive")
	}
	if c.Cache.SizeMB < 0 {
		return fmt.Errorf("cache.size-mb must not be negative")
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must include scheme and host, got %q", key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use %s, got %q", key, strings.Join(schemes, " or "), u.Scheme)
}

// ReconnectPolicy turns the reconnect section into a subscription policy.
func (c Config) ReconnectPolicy() subscription.ReconnectPolicy {
	if c.Reconnect.Strategy == ReconnectExponential {
		return subscription.ExponentialReconnect(c.Reconnect.Delay, c.Reconnect.MaxDelay)
	}
	return subscription.ConstantReconnect(c.Reconnect.Delay)
}
