package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.State.Backend) {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("redis.address must be set for the redis backend"))
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, errors.New("redis.pool_size must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid state.backend %q: must be %q or %q", c.State.Backend, BackendMemory, BackendRedis))
	}

	if c.State.DefaultTTLMinutes < 1 {
		errs = append(errs, errors.New("state.default_ttl_minutes must be positive"))
	}
	if c.State.SweepIntervalMinutes < 1 {
		errs = append(errs, errors.New("state.sweep_interval_minutes must be positive"))
	}
	if c.Timeout.DefaultSeconds < 1 {
		errs = append(errs, errors.New("timeout.default_seconds must be positive"))
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, errors.New("cache.max_entries must be positive"))
	}
	if c.Cache.MaxAgeMinutes < 1 {
		errs = append(errs, errors.New("cache.max_age_minutes must be positive"))
	}
	if c.Cache.MaxAsyncBuilds < 1 {
		errs = append(errs, errors.New("cache.max_async_builds must be positive"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be json or text", c.Log.Format))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}

	return errors.Join(errs...)
}
