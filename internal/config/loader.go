package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads path, expands ${ENV_VAR} references, unmarshals into a
// Config, and fills in defaults for anything the file left zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Identity.TokenExpiry <= 0 {
		c.Identity.TokenExpiry = 24 * time.Hour
	}
	if c.Providers.Default == "" {
		c.Providers.Default = "anthropic"
	}
	if c.Pool.CleanupInterval <= 0 {
		c.Pool.CleanupInterval = 30 * time.Second
	}
	if c.Pool.QueryTimeout <= 0 {
		c.Pool.QueryTimeout = 120 * time.Second
	}
	if c.Prompt.ContextWindow <= 0 {
		c.Prompt.ContextWindow = 200_000
	}
	if c.Embeddings.Preference == "" {
		c.Embeddings.Preference = "auto"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
