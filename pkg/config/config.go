// Package config loads engine configuration from a YAML file with
// environment variable overrides. Secrets only come from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the criteria engine. Environment
// variables override YAML values; the API key is env-only.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Retry     RetryConfig     `yaml:"retry"`
	Validator ValidatorConfig `yaml:"validator"`
	Schema    SchemaConfig    `yaml:"schema"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// LLMConfig selects and tunes the generation provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
}

// RetryConfig tunes the corrective and backoff retry protocols.
type RetryConfig struct {
	// MaxCorrections is the number of corrective re-prompts after a
	// schema-violating response.
	MaxCorrections int `yaml:"max_corrections" env:"RETRY_MAX_CORRECTIONS" env-default:"2"`
	// BackoffAttempts is the number of backoff retries for transient
	// API failures, per generation call.
	BackoffAttempts int `yaml:"backoff_attempts" env:"RETRY_BACKOFF_ATTEMPTS" env-default:"3"`
	// BreakerThreshold trips the circuit after this many consecutive
	// provider failures; 0 disables the breaker.
	BreakerThreshold int `yaml:"breaker_threshold" env:"RETRY_BREAKER_THRESHOLD" env-default:"5"`
}

// ValidatorConfig carries the confidence threshold policy.
type ValidatorConfig struct {
	FailedBelow float64 `yaml:"failed_below" env:"VALIDATOR_FAILED_BELOW" env-default:"0.5"`
	ReviewBelow float64 `yaml:"review_below" env:"VALIDATOR_REVIEW_BELOW" env-default:"0.7"`
	PassedAt    float64 `yaml:"passed_at" env:"VALIDATOR_PASSED_AT" env-default:"0.9"`
}

// SchemaConfig selects the catalogue source. Precedence: PostgresURL if
// set, then CataloguePath, then the built-in MIMIC-IV catalogue.
type SchemaConfig struct {
	CataloguePath string `yaml:"catalogue_path" env:"SCHEMA_CATALOGUE_PATH" env-default:""`
	PostgresURL   string `yaml:"-" env:"SCHEMA_POSTGRES_URL"` // May carry credentials - not in YAML
}

// CacheConfig selects the mapping cache backend.
type CacheConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	// Path is the SQLite database file, used when Backend is "sqlite".
	Path string `yaml:"path" env:"CACHE_PATH" env-default:"criteria-cache.db"`
}

// PipelineConfig tunes orchestration.
type PipelineConfig struct {
	// MaxConcurrent bounds parallel Stage-2 mapping calls; 1 is sequential.
	MaxConcurrent int `yaml:"max_concurrent" env:"PIPELINE_MAX_CONCURRENT" env-default:"1"`
}

// Load reads configuration from the given YAML file (if it exists) with
// environment variable overrides. A missing file is not an error; the
// environment and defaults apply alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q must be openai or anthropic", c.LLM.Provider)
	}

	switch c.Cache.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("cache.backend %q must be memory or sqlite", c.Cache.Backend)
	}

	t := c.Validator
	if !(0 <= t.FailedBelow && t.FailedBelow <= t.ReviewBelow && t.ReviewBelow <= t.PassedAt && t.PassedAt <= 1) {
		return fmt.Errorf("validator thresholds must satisfy 0 <= failed_below <= review_below <= passed_at <= 1")
	}

	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be at least 1")
	}
	return nil
}
