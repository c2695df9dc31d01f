// Package config loads chirpd's configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the effective server configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Security struct {
		// MasterKey is the base64-encoded 32-byte key the content
		// transform derives per-conversation subkeys from.
		MasterKey string `yaml:"master_key"`
	} `yaml:"security"`
	Media struct {
		Dir string `yaml:"dir"`
	} `yaml:"media"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Addr = "127.0.0.1:3000"
	cfg.Storage.Path = "./data/messages"
	cfg.Media.Dir = "./data/media"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads the YAML file at path (skipped when empty or absent), then
// applies CHIRP_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHIRP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CHIRP_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CHIRP_MASTER_KEY"); v != "" {
		cfg.Security.MasterKey = v
	}
	if v := os.Getenv("CHIRP_MEDIA_DIR"); v != "" {
		cfg.Media.Dir = v
	}
	if v := os.Getenv("CHIRP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// MasterKey decodes the configured key. When none is configured a random
// key is generated and a warning logged: fine for development, but stored
// content will not survive a restart without a persistent key.
func (c *Config) MasterKey() ([]byte, error) {
	if c.Security.MasterKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate master key: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "MasterKey",
		}).Warn("No master key configured, generated an ephemeral one")
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Security.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// LogLevel parses the configured logrus level, defaulting to info.
func (c *Config) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
