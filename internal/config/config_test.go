package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDefaults(t *testing.T) {
	cfg, err := Decode(New())
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.State.Backend)
	assert.Equal(t, 30*time.Minute, cfg.State.DefaultTTL())
	assert.Equal(t, 10*time.Minute, cfg.State.SweepInterval())
	assert.Empty(t, cfg.State.SnapshotPath)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, "formflow:state:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 300*time.Second, cfg.Timeout.Default())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 30*time.Minute, cfg.Cache.MaxAge())
	assert.Equal(t, 8, cfg.Cache.MaxAsyncBuilds)
	assert.True(t, cfg.Delivery.FallbackEnabled)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[state]
backend = "redis"
default_ttl_minutes = 5

[redis]
address = "cache:6379"
db = 2

[cache]
enabled = false

[log]
format = "text"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.State.Backend)
	assert.Equal(t, 5*time.Minute, cfg.State.DefaultTTL())
	assert.Equal(t, 10*time.Minute, cfg.State.SweepInterval())
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadWithoutDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.State.Backend)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("FORMFLOW_TIMEOUT_DEFAULT_SECONDS", "45")
	t.Setenv("FORMFLOW_SERVER_ADDRESS", "127.0.0.1:9000")

	cfg, err := Decode(New())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Timeout.Default())
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		message string
	}{
		{name: "unknown backend", key: "state.backend", value: "etcd", message: "invalid state.backend"},
		{name: "zero ttl", key: "state.default_ttl_minutes", value: 0, message: "state.default_ttl_minutes"},
		{name: "negative sweep", key: "state.sweep_interval_minutes", value: -1, message: "state.sweep_interval_minutes"},
		{name: "zero timeout", key: "timeout.default_seconds", value: 0, message: "timeout.default_seconds"},
		{name: "zero cache size", key: "cache.max_entries", value: 0, message: "cache.max_entries"},
		{name: "zero cache age", key: "cache.max_age_minutes", value: 0, message: "cache.max_age_minutes"},
		{name: "zero async builds", key: "cache.max_async_builds", value: 0, message: "cache.max_async_builds"},
		{name: "bad log format", key: "log.format", value: "xml", message: "log.format"},
		{name: "relative metrics path", key: "metrics.path", value: "metrics", message: "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.value)

			_, err := Decode(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateRedisNeedsAddress(t *testing.T) {
	v := New()
	v.Set("state.backend", BackendRedis)
	v.Set("redis.address", "")

	_, err := Decode(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.address")
}

func TestKeysAllHaveDefaults(t *testing.T) {
	v := New()
	for _, key := range Keys() {
		assert.True(t, v.IsSet(key), key)
	}
}
