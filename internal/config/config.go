// Package config loads service settings from defaults, an optional config
// file, a .env file and ETHAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	SchemeLegacy = "legacy"
	SchemeEIP712 = "eip712"

	envPrefix = "ETHAUTH"
)

// EIP712Config describes the EIP-712 signing domain
type EIP712Config struct {
	Name              string `mapstructure:"name"`
	Version           string `mapstructure:"version"`
	ChainID           int64  `mapstructure:"chain_id"`
	VerifyingContract string `mapstructure:"verifying_contract"`
}

// ChainIDBig returns the chain id, or nil when it is not set
func (c EIP712Config) ChainIDBig() *big.Int {
	if c.ChainID == 0 {
		return nil
	}
	return big.NewInt(c.ChainID)
}

// EventsConfig controls publishing of authenticated events
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
}

// Config holds all service settings
type Config struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	Banner       string        `mapstructure:"banner"`
	Store        string        `mapstructure:"store"`
	RedisURL     string        `mapstructure:"redis_url"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	ReceiptTTL   time.Duration `mapstructure:"receipt_ttl"`
	Scheme       string        `mapstructure:"scheme"`
	EIP712       EIP712Config  `mapstructure:"eip712"`
	Events       EventsConfig  `mapstructure:"events"`
	LogLevel     string        `mapstructure:"log_level"`
}

// setDefaults registers every key so that environment overrides are picked up
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":9000")
	v.SetDefault("banner", "Sign this message to log in")
	v.SetDefault("store", StoreRedis)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("challenge_ttl", 5*time.Minute)
	v.SetDefault("receipt_ttl", 5*time.Minute)
	v.SetDefault("scheme", SchemeLegacy)
	v.SetDefault("eip712.name", "ethauth")
	v.SetDefault("eip712.version", "1")
	v.SetDefault("eip712.chain_id", 1)
	v.SetDefault("eip712.verifying_contract", "")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.topic", "ethauth.authenticated")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. configFile may be empty; a missing .env file is ignored.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for unusable values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Banner) == "" {
		return errors.New("banner must not be empty")
	}

	switch c.Store {
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.Scheme {
	case SchemeLegacy:
	case SchemeEIP712:
		if c.EIP712.Name == "" {
			return errors.New("eip712.name is required for the eip712 scheme")
		}
	default:
		return fmt.Errorf("unknown scheme %q", c.Scheme)
	}

	if c.ChallengeTTL <= 0 {
		return errors.New("challenge_ttl must be positive")
	}
	if c.ReceiptTTL <= 0 {
		return errors.New("receipt_ttl must be positive")
	}
	if c.Events.Enabled && c.Store != StoreRedis {
		return errors.New("events require the redis store")
	}

	return nil
}
