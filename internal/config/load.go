package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "RUSTY"

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"endpoint":        "endpoint",
	"ws-url":          "ws-url",
	"token":           "token",
	"ack-timeout":     "ack-timeout",
	"request-timeout": "request-timeout",
	"reconnect":       "reconnect.strategy",
	"reconnect-delay": "reconnect.delay",
	"cache-dir":       "cache.dir",
	"cache-size":      "cache.size-mb",
	"cache-ttl":       "cache.ttl",
	"log-file":        "log.file",
	"log-level":       "log.level",
	"metrics-addr":    "metrics.addr",
}

// Load resolves the configuration from defaults, the YAML file at path,
// RUSTY_* environment variables and any changed flags, in increasing
// precedence. A missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("endpoint", def.Endpoint)
	v.SetDefault("ws-url", def.WebsocketURL)
	v.SetDefault("token", def.Token)
	v.SetDefault("ack-timeout", def.AckTimeout)
	v.SetDefault("request-timeout", def.RequestTimeout)
	v.SetDefault("reconnect.strategy", def.Reconnect.Strategy)
	v.SetDefault("reconnect.delay", def.Reconnect.Delay)
	v.SetDefault("reconnect.max-delay", def.Reconnect.MaxDelay)
	v.SetDefault("cache.dir", def.Cache.Dir)
	v.SetDefault("cache.size-mb", def.Cache.SizeMB)
	v.SetDefault("cache.ttl", def.Cache.TTL)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("metrics.addr", def.Metrics.Addr)

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Cache.Dir = os.ExpandEnv(cfg.Cache.Dir)
	cfg.Log.File = os.ExpandEnv(cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default config to path, or to DefaultConfigPath
// when path is empty, and returns the path written.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// SaveToken sets the token key of the config file at path, or at
// DefaultConfigPath when path is empty, keeping the rest of the file. The
// file is created when missing. It returns the path written.
func SaveToken(path, token string) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return "", err
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return "", fmt.Errorf("%s: top level is not a mapping", path)
	}
	setScalar(root, "token", token)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1].SetString(value)
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
