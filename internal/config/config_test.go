package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.85, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Cache.IntermediateTTL)
	assert.Equal(t, 10, cfg.Workflow.MaxSteps)
	assert.Equal(t, 32*24*time.Hour, cfg.Metering.DailyTTL)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
redis:
  addr: "redis.internal:6380"
cache:
  similarity_threshold: 0.9
  intermediate_ttl: 12h
rate_limit:
  enabled: true
  requests_per_minute: 120
`)

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
		assert.Equal(t, 0.9, cfg.Cache.SimilarityThreshold)
		assert.Equal(t, 12*time.Hour, cfg.Cache.IntermediateTTL)
		assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
		// Untouched sections keep defaults.
		assert.Equal(t, time.Hour, cfg.Cache.ResponseTTL)
		assert.Equal(t, 10, cfg.Workflow.MaxSteps)
	})

	t.Run("expands environment variables", func(t *testing.T) {
		t.Setenv("COSTGATE_TEST_REDIS_ADDR", "10.0.0.5:6379")
		path := writeConfig(t, `
redis:
  addr: "${COSTGATE_TEST_REDIS_ADDR}"
`)

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5:6379", cfg.Redis.Addr)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := writeConfig(t, `
cache:
  similarity_threshold: 1.5
`)

		_, err := LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "similarity_threshold")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"zero response ttl", func(c *Config) { c.Cache.ResponseTTL = 0 }},
		{"zero embedding dimension", func(c *Config) { c.Cache.EmbeddingDimension = 0 }},
		{"zero max steps", func(c *Config) { c.Workflow.MaxSteps = 0 }},
		{"zero rpm while enabled", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
		{"zero monthly ttl", func(c *Config) { c.Metering.MonthlyTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
