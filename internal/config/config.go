// Package config loads and validates the homeserver's TOML configuration
// file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the homeserver's full configuration, as loaded from a TOML
// file (spec.md §6).
type Config struct {
	Testnet            bool     `toml:"testnet"`
	Port               uint16   `toml:"port"`
	Bootstrap          []string `toml:"bootstrap"`
	Domain             string   `toml:"domain"`
	Storage            string   `toml:"storage"`
	SecretKey          string   `toml:"secret_key"` // hex(32)
	DHTRequestTimeout  string   `toml:"dht_request_timeout"`
	DefaultListLimit   uint16   `toml:"default_list_limit"`
	MaxListLimit       uint16   `toml:"max_list_limit"`
}

// Default returns the configuration used when no file is given: a local
// testnet homeserver on localhost.
func Default() *Config {
	return &Config{
		Testnet:           true,
		Port:              6287,
		Domain:            "localhost",
		Storage:           "./homeserver-data",
		DHTRequestTimeout: "5s",
		DefaultListLimit:  100,
		MaxListLimit:      1000,
	}
}

// Load reads and parses the TOML file at path, filling in defaults for any
// field BurntSushi/toml leaves zero-valued, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Storage = expandPath(cfg.Storage)
	return cfg, nil
}

// Validate checks the loaded configuration for internally consistent,
// usable values.
func (c *Config) Validate() error {
	if c.Port == 0 {
		return errors.New("config: port must be nonzero")
	}
	if c.Domain == "" {
		return errors.New("config: domain must be set")
	}
	if c.Storage == "" {
		return errors.New("config: storage path must be set")
	}
	if c.SecretKey != "" {
		b, err := hex.DecodeString(c.SecretKey)
		if err != nil {
			return fmt.Errorf("config: secret_key must be hex: %w", err)
		}
		if len(b) != 32 {
			return fmt.Errorf("config: secret_key must decode to 32 bytes, got %d", len(b))
		}
	}
	if _, err := c.RequestTimeout(); err != nil {
		return fmt.Errorf("config: dht_request_timeout: %w", err)
	}
	if c.DefaultListLimit == 0 {
		c.DefaultListLimit = 100
	}
	if c.MaxListLimit == 0 {
		c.MaxListLimit = 1000
	}
	if c.DefaultListLimit > c.MaxListLimit {
		return errors.New("config: default_list_limit must not exceed max_list_limit")
	}
	return nil
}

// RequestTimeout parses DHTRequestTimeout as a duration.
func (c *Config) RequestTimeout() (time.Duration, error) {
	if c.DHTRequestTimeout == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(c.DHTRequestTimeout)
}

// SecretKeyBytes decodes SecretKey from hex, returning nil if it's unset.
func (c *Config) SecretKeyBytes() ([]byte, error) {
	if c.SecretKey == "" {
		return nil, nil
	}
	return hex.DecodeString(c.SecretKey)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
