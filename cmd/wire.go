package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	tomlrepo "github.com/bnema/formflow/internal/adapters/repo/toml"
	"github.com/bnema/formflow/internal/adapters/scheduler"
	memorystore "github.com/bnema/formflow/internal/adapters/state/memory"
	redisstore "github.com/bnema/formflow/internal/adapters/state/redis"
	"github.com/bnema/formflow/internal/application"
	"github.com/bnema/formflow/internal/config"
	"github.com/bnema/formflow/internal/logging"
	"github.com/bnema/formflow/internal/metrics"
	"github.com/bnema/formflow/internal/ports"
)

type app struct {
	cfg       *config.Config
	viper     *viper.Viper
	logger    *logging.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Collector
	store     ports.StateStore
	snapshots ports.SnapshotRepository
	clock     ports.Clock
}

// wireApp loads configuration and builds everything an engine needs except
// its transport.
func wireApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	v := config.New()
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logOut, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(registry)

	a := &app{
		cfg:      cfg,
		viper:    v,
		logger:   logger,
		registry: registry,
		metrics:  collector,
		clock:    ports.SystemClock{},
	}

	if err := a.wireStore(ctx); err != nil {
		return nil, err
	}

	if cfg.State.SnapshotPath != "" {
		if cfg.State.Backend != config.BackendMemory {
			logger.Warn("state snapshots only apply to the memory backend", "backend", cfg.State.Backend)
		}
		snapshots, err := tomlrepo.NewSnapshotRepository(v, a.clock)
		if err != nil {
			return nil, fmt.Errorf("wire snapshot repository: %w", err)
		}
		a.snapshots = snapshots
	}

	return a, nil
}

func (a *app) wireStore(ctx context.Context) error {
	switch a.cfg.State.Backend {
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Address:  a.cfg.Redis.Address,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			PoolSize: a.cfg.Redis.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("wire redis state store: %w", err)
		}
		a.store = redisstore.NewStore(client, a.cfg.Redis.KeyPrefix, a.cfg.State.DefaultTTL(), a.logger.Logger)
	default:
		store := memorystore.New(memorystore.Options{
			DefaultTTL:    a.cfg.State.DefaultTTL(),
			SweepInterval: a.cfg.State.SweepInterval(),
			Clock:         a.clock,
			Logger:        a.logger.Logger,
			OnSweep:       a.metrics.Swept,
		})
		store.Start()
		a.store = store
	}
	return nil
}

func (a *app) engineConfig() application.EngineConfig {
	return application.EngineConfig{
		DefaultTimeout:  a.cfg.Timeout.Default(),
		FallbackEnabled: a.cfg.Delivery.FallbackEnabled,
		Cache: application.CacheConfig{
			Enabled:        a.cfg.Cache.Enabled,
			MaxEntries:     a.cfg.Cache.MaxEntries,
			MaxAge:         a.cfg.Cache.MaxAge(),
			MaxAsyncBuilds: int64(a.cfg.Cache.MaxAsyncBuilds),
		},
	}
}

// newEngine builds the engine around a transport and restores the last
// snapshot, if any.
func (a *app) newEngine(ctx context.Context, sender ports.Sender, presence ports.Presence) (*application.Engine, error) {
	engine, err := application.NewEngine(a.engineConfig(), application.Deps{
		Store:     a.store,
		Scheduler: scheduler.New(a.logger.Logger),
		Sender:    sender,
		Presence:  presence,
		Snapshots: a.snapshots,
		Clock:     a.clock,
		Logger:    a.logger.Logger,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire engine: %w", err)
	}

	loaded, err := engine.LoadSnapshot(ctx)
	if err != nil {
		a.logger.Warn("state snapshot not restored", "error", err)
	} else if loaded > 0 {
		a.logger.Info("state snapshot restored", "entries", loaded)
	}
	return engine, nil
}

func shutdownEngine(engine *application.Engine, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return engine.Shutdown(ctx)
}
