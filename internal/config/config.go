package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "FORMFLOW"
	BackendMemory = "memory"
	BackendRedis  = "redis"

	appDirName = "formflow"
	fileName   = "config"
	fileType   = "toml"
)

type Config struct {
	State    StateConfig    `mapstructure:"state"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Timeout  TimeoutConfig  `mapstructure:"timeout"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type StateConfig struct {
	Backend              string `mapstructure:"backend"`
	DefaultTTLMinutes    int    `mapstructure:"default_ttl_minutes"`
	SweepIntervalMinutes int    `mapstructure:"sweep_interval_minutes"`
	SnapshotPath         string `mapstructure:"snapshot_path"`
}

func (c StateConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMinutes) * time.Minute
}

func (c StateConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TimeoutConfig struct {
	DefaultSeconds int `mapstructure:"default_seconds"`
}

func (c TimeoutConfig) Default() time.Duration {
	return time.Duration(c.DefaultSeconds) * time.Second
}

type CacheConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxEntries     int  `mapstructure:"max_entries"`
	MaxAgeMinutes  int  `mapstructure:"max_age_minutes"`
	MaxAsyncBuilds int  `mapstructure:"max_async_builds"`
}

func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMinutes) * time.Minute
}

type DeliveryConfig struct {
	FallbackEnabled bool `mapstructure:"fallback_enabled"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and FORMFLOW_ environment
// overrides wired in. Nothing is read from disk yet.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType(fileType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads path, or the default config file when path is empty, into v.
// A missing default file is not an error; a missing explicit one is.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if dir, err := DefaultDir(); err == nil {
		v.SetConfigName(fileName)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return Decode(v)
}

// Decode unmarshals and validates whatever v currently holds.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appDirName), nil
}
