package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should produce valid defaults without any environment", func(t *testing.T) {
		cfg, err := Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 1000, cfg.Cache.MaxSize)
		assert.Equal(t, "lru", cfg.Cache.EvictionPolicy)
		assert.Equal(t, "mnemora", cfg.Tier.Namespace)
		assert.Equal(t, 7*24*time.Hour, cfg.Tier.HotTierMaxAge)
	})

	t.Run("Should apply environment overrides on top of defaults", func(t *testing.T) {
		t.Setenv("MNEMORA_LOG_LEVEL", "debug")
		t.Setenv("MNEMORA_REDIS_HOST", "redis.internal")
		t.Setenv("MNEMORA_CACHE_MAX_SIZE", "250")
		t.Setenv("MNEMORA_TIER_WARM_TIER_MAX_AGE", "72h")
		cfg, err := Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "redis.internal", cfg.Redis.Host)
		assert.Equal(t, 250, cfg.Cache.MaxSize)
		assert.Equal(t, 72*time.Hour, cfg.Tier.WarmTierMaxAge)
		// Untouched sections keep their defaults.
		assert.Equal(t, "5432", cfg.Database.Port)
	})

	t.Run("Should reject an unknown eviction policy", func(t *testing.T) {
		t.Setenv("MNEMORA_CACHE_EVICTION_POLICY", "fifo")
		_, err := Load(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EvictionPolicy")
	})

	t.Run("Should reject an unparsable duration", func(t *testing.T) {
		t.Setenv("MNEMORA_REDIS_OP_TIMEOUT", "soon")
		_, err := Load(t.Context())
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Should accept the built-in defaults", func(t *testing.T) {
		assert.NoError(t, Validate(Default()))
	})

	t.Run("Should report every violation at once", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.MaxSize = 0
		cfg.Tier.Namespace = ""
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MaxSize")
		assert.Contains(t, err.Error(), "Namespace")
	})
}

func TestRedisConfig(t *testing.T) {
	t.Run("Should assemble a URL from discrete fields", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.internal", Port: "6380", Password: "s3cret"}
		assert.Equal(t, "redis://:s3cret@cache.internal:6380", cfg.RedisURL())
	})

	t.Run("Should prefer an explicit URL", func(t *testing.T) {
		cfg := RedisConfig{URL: "redis://explicit:6379/2", Host: "ignored"}
		assert.Equal(t, "redis://explicit:6379/2", cfg.RedisURL())
	})
}

func TestDatabaseConfig(t *testing.T) {
	t.Run("Should assemble a DSN from discrete fields", func(t *testing.T) {
		cfg := Default().Database
		cfg.Password = "pw"
		assert.Equal(t, "postgres://mnemora:pw@localhost:5432/mnemora?sslmode=disable", cfg.DSN())
	})

	t.Run("Should prefer an explicit connection string", func(t *testing.T) {
		cfg := DatabaseConfig{ConnString: "postgres://other/db"}
		assert.Equal(t, "postgres://other/db", cfg.DSN())
	})
}
