// Package config loads the relay configuration from the environment
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the process configuration
type Config struct {
	Debug bool   `env:"DEBUG" envDefault:"false"`
	Port  string `env:"PORT" envDefault:"8080"`

	// FrontendOrigins lists the origins allowed to open a websocket and call
	// the HTTP API. "*" allows any origin.
	FrontendOrigins []string `env:"FRONTEND_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// EnginePath enables engine moves when set.
	EnginePath     string            `env:"ENGINE_PATH"`
	EnginePoolSize int               `env:"ENGINE_POOL_SIZE" envDefault:"2"`
	EngineMovetime time.Duration     `env:"ENGINE_MOVETIME" envDefault:"500ms"`
	EngineTimeout  time.Duration     `env:"ENGINE_TIMEOUT" envDefault:"10s"`
	EngineOptions  map[string]string `env:"ENGINE_OPTIONS" envSeparator:"," envKeyValSeparator:":"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

// Load parses the environment into a Config and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that parse but make no sense
func (c *Config) Validate() error {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" || strings.ContainsAny(port, " :") {
		return fmt.Errorf("invalid PORT value: %q", c.Port)
	}
	c.Port = port

	if c.EnginePath != "" && c.EnginePoolSize < 1 {
		return fmt.Errorf("invalid ENGINE_POOL_SIZE value: %d", c.EnginePoolSize)
	}

	if c.EngineMovetime <= 0 {
		return fmt.Errorf("invalid ENGINE_MOVETIME value: %s", c.EngineMovetime)
	}

	return nil
}

// EngineEnabled reports whether an engine binary was configured
func (c *Config) EngineEnabled() bool {
	return c.EnginePath != ""
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// AllowsOrigin reports whether a browser origin may connect
func (c *Config) AllowsOrigin(origin string) bool {
	for _, allowed := range c.FrontendOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
