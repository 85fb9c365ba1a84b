// Package config holds the Config struct tree for cmd/routerd: one file
// per concern, a root Config aggregating them, yaml tags throughout.
package config

import "time"

// Config is the root configuration for a routerd process.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Identity   IdentityConfig   `yaml:"identity"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Pool       PoolConfig       `yaml:"pool"`
	Usage      UsageConfig      `yaml:"usage"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the process's own listeners (metrics only —
// this process hosts no request-serving surface of its own).
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// IdentityConfig configures JWT-based agent-identity verification at the
// process boundary.
type IdentityConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// ProvidersConfig names the Dispatcher's default provider and model.
type ProvidersConfig struct {
	Default      string `yaml:"default"`
	DefaultModel string `yaml:"default_model"`
}

// PoolConfig configures the Session Pool.
type PoolConfig struct {
	CleanupInterval time.Duration                     `yaml:"cleanup_interval"`
	QueryTimeout    time.Duration                     `yaml:"query_timeout"`
	Capacity        map[string]ProviderCapacityConfig `yaml:"capacity"`
}

// ProviderCapacityConfig is one provider's slice of Pool capacity.
type ProviderCapacityConfig struct {
	Max         int           `yaml:"max"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// UsageConfig configures Usage Stats and the Budget Tracker.
type UsageConfig struct {
	Retention   time.Duration                         `yaml:"retention"`
	DailyCapUSD float64                                `yaml:"daily_cap_usd"`
	Prices      map[string]map[string]ModelPriceConfig `yaml:"prices"`
	PersistPath string                                 `yaml:"persist_path"`
}

// ModelPriceConfig is one model's per-million-token pricing.
type ModelPriceConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PromptConfig configures the System-Prompt Builder.
type PromptConfig struct {
	ContextWindow int                   `yaml:"context_window"`
	Sections      []SectionBudgetConfig `yaml:"sections"`
}

// SectionBudgetConfig is one section's budget rule.
type SectionBudgetConfig struct {
	Name   string  `yaml:"name"`
	Kind   string  `yaml:"kind"`
	Tokens int     `yaml:"tokens"`
	Min    int     `yaml:"min"`
	Max    int     `yaml:"max"`
	Pct    float64 `yaml:"pct"`
}

// EmbeddingsConfig configures the Embedding Router.
type EmbeddingsConfig struct {
	Preference          string   `yaml:"preference"`
	Providers            []string `yaml:"providers"`
	FallbackToCloud      bool     `yaml:"fallback_to_cloud"`
	DevFallbackEnabled   bool     `yaml:"dev_fallback_enabled"`
	DevFallbackProvider  string   `yaml:"dev_fallback_provider"`
}

// LoggingConfig holds the logging section of the YAML file. Load fills in
// level "info" and format "json" when they are absent; cmd/routerd does not
// read these fields and builds its logger from ROUTERD_LOG_LEVEL with a
// JSON handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}
