package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings for calsyncctl.
type Config struct {
	ServerEndpointAddr string        `env:"CALSYNC_SERVER_ADDR"`
	SessionToken       string        `env:"CALSYNC_SESSION_TOKEN"`
	RequestTimeout     time.Duration `env:"CALSYNC_REQUEST_TIMEOUT"`
	AuthorizationWait  time.Duration `env:"CALSYNC_AUTHORIZATION_WAIT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 15 * time.Second
	c.AuthorizationWait = 5 * time.Minute
}

// Load builds a Config from defaults, the JSON file, the environment and
// flags, in that order.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive")
	}
	return cfg, nil
}
