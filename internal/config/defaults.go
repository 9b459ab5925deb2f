package config

import "github.com/spf13/viper"

func SetDefaults(v *viper.Viper) {
	// State
	v.SetDefault("state.backend", BackendMemory)
	v.SetDefault("state.default_ttl_minutes", 30)
	v.SetDefault("state.sweep_interval_minutes", 10)
	v.SetDefault("state.snapshot_path", "")

	// Redis
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "formflow:state:")

	// Engine
	v.SetDefault("timeout.default_seconds", 300)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.max_age_minutes", 30)
	v.SetDefault("cache.max_async_builds", 8)
	v.SetDefault("delivery.fallback_enabled", true)

	// Server
	v.SetDefault("server.address", ":8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Keys lists every key with a default, in a stable order for display.
func Keys() []string {
	return []string{
		"state.backend",
		"state.default_ttl_minutes",
		"state.sweep_interval_minutes",
		"state.snapshot_path",
		"redis.address",
		"redis.password",
		"redis.db",
		"redis.pool_size",
		"redis.key_prefix",
		"timeout.default_seconds",
		"cache.enabled",
		"cache.max_entries",
		"cache.max_age_minutes",
		"cache.max_async_builds",
		"delivery.fallback_enabled",
		"server.address",
		"metrics.enabled",
		"metrics.path",
		"log.level",
		"log.format",
	}
}
