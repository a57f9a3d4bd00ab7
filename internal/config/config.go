// Package config loads the client configuration from CHOMP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the client configuration
type Config struct {
	BackendURL  string `env:"CHOMP_BACKEND_URL" envDefault:"http://localhost:40004"`
	BackendName string `env:"CHOMP_BACKEND_NAME" envDefault:"local"`

	// RedisURL selects the Redis store and event stream; empty means SQLite
	RedisURL  string `env:"CHOMP_REDIS_URL"`
	StorePath string `env:"CHOMP_STORE_PATH"`

	ListenAddr string `env:"CHOMP_LISTEN_ADDR" envDefault:"127.0.0.1:40005"`
	LogLevel   string `env:"CHOMP_LOG_LEVEL" envDefault:"info"`

	OAuth2Enabled   bool     `env:"CHOMP_OAUTH2_ENABLED" envDefault:"true"`
	OAuth2Providers []string `env:"CHOMP_OAUTH2_PROVIDERS" envDefault:"github,x" envSeparator:","`

	EVMPrivateKey string `env:"CHOMP_EVM_PRIVATE_KEY"`
	SVMPrivateKey string `env:"CHOMP_SVM_PRIVATE_KEY"`
	SuiPrivateKey string `env:"CHOMP_SUI_PRIVATE_KEY"`
}

// Load parses the environment and fills in derived defaults
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.StorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("no store path and no user config dir: %w", err)
		}
		cfg.StorePath = filepath.Join(dir, "chomp-auth", "session.db")
	}
	return cfg, nil
}

// Providers returns the OAuth2 providers to offer, none when OAuth2 is disabled
func (c Config) Providers() []string {
	if !c.OAuth2Enabled {
		return nil
	}
	return c.OAuth2Providers
}
