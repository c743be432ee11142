// Package config provides configuration management for the cost-control core.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete core configuration.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metering  MeteringConfig  `yaml:"metering"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RedisConfig contains connection settings for the shared key-value store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password     string        `yaml:"password"` // Redis password
	DB           int           `yaml:"db"`       // Redis database number
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
}

// CacheConfig defines behavior for the three cache tiers.
type CacheConfig struct {
	ResponseTTL         time.Duration `yaml:"response_ttl"`         // Tier 1/2 entry TTL (default: 1 hour)
	IntermediateTTL     time.Duration `yaml:"intermediate_ttl"`     // Tier 3 entry TTL (default: 24 hours)
	SimilarityThreshold float64       `yaml:"similarity_threshold"` // Tier 2 hit threshold (0.0-1.0)
	EmbeddingModel      string        `yaml:"embedding_model"`      // Embedding model name
	EmbeddingDimension  int           `yaml:"embedding_dimension"`  // Embedding vector dimension
	EmbeddingAPIKey     string        `yaml:"embedding_api_key"`    // API key for the remote embedder (optional)
	EmbeddingAPIBase    string        `yaml:"embedding_api_base"`   // API base URL for the remote embedder (optional)
}

// WorkflowConfig defines limits for prompt decomposition.
type WorkflowConfig struct {
	MaxSteps int `yaml:"max_steps"` // Maximum steps per decomposed prompt (default: 10)
}

// RateLimitConfig defines sliding-window rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"` // Default per-tenant limit
}

// MeteringConfig defines usage and budget counter retention.
type MeteringConfig struct {
	DailyTTL   time.Duration `yaml:"daily_ttl"`   // Retention for daily usage counters (default: 32 days)
	MonthlyTTL time.Duration `yaml:"monthly_ttl"` // Retention for monthly budget counters (default: 35 days)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Cache: CacheConfig{
			ResponseTTL:         time.Hour,
			IntermediateTTL:     24 * time.Hour,
			SimilarityThreshold: 0.85,
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimension:  384,
		},
		Workflow: WorkflowConfig{
			MaxSteps: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
		},
		Metering: MeteringConfig{
			DailyTTL:   32 * 24 * time.Hour,
			MonthlyTTL: 35 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be between 0 and 1, got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.ResponseTTL <= 0 {
		return fmt.Errorf("cache.response_ttl must be positive")
	}
	if c.Cache.IntermediateTTL <= 0 {
		return fmt.Errorf("cache.intermediate_ttl must be positive")
	}
	if c.Cache.EmbeddingDimension <= 0 {
		return fmt.Errorf("cache.embedding_dimension must be positive")
	}

	if c.Workflow.MaxSteps <= 0 {
		return fmt.Errorf("workflow.max_steps must be positive")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive when enabled")
	}

	if c.Metering.DailyTTL <= 0 {
		return fmt.Errorf("metering.daily_ttl must be positive")
	}
	if c.Metering.MonthlyTTL <= 0 {
		return fmt.Errorf("metering.monthly_ttl must be positive")
	}

	return nil
}
