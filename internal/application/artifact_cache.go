package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheEntries   = 100
	DefaultCacheMaxAge    = 30 * time.Minute
	DefaultMaxAsyncBuilds = 8
)

// BuildFunc produces a form. The context outlives the caller that started
// the build when other callers are waiting on the same fingerprint.
type BuildFunc func(ctx context.Context) (*domain.Form, error)

type CacheConfig struct {
	Enabled        bool
	MaxEntries     int
	MaxAge         time.Duration
	MaxAsyncBuilds int64
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:        true,
		MaxEntries:     DefaultCacheEntries,
		MaxAge:         DefaultCacheMaxAge,
		MaxAsyncBuilds: DefaultMaxAsyncBuilds,
	}
}

type CacheStats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Builds    int64
	Failures  int64
	Evictions int64
	HitRate   float64
}

// ArtifactCache builds forms at most once per fingerprint at a time and
// keeps the results in a bounded LRU. Failed builds are not cached.
type ArtifactCache struct {
	cfg     CacheConfig
	entries *lru.Cache[string, *domain.Form]
	group   singleflight.Group
	async   *semaphore.Weighted
	pending sync.WaitGroup

	clock   ports.Clock
	logger  *slog.Logger
	metrics ports.Metrics

	hits      *atomic.Int64
	misses    *atomic.Int64
	builds    *atomic.Int64
	failures  *atomic.Int64
	evictions *atomic.Int64
}

func NewArtifactCache(cfg CacheConfig, clock ports.Clock, logger *slog.Logger, metrics ports.Metrics) (*ArtifactCache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheEntries
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultCacheMaxAge
	}
	if cfg.MaxAsyncBuilds <= 0 {
		cfg.MaxAsyncBuilds = DefaultMaxAsyncBuilds
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	entries, err := lru.New[string, *domain.Form](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}

	return &ArtifactCache{
		cfg:       cfg,
		entries:   entries,
		async:     semaphore.NewWeighted(cfg.MaxAsyncBuilds),
		clock:     clock,
		logger:    logger.With("component", "artifact_cache"),
		metrics:   metrics,
		hits:      atomic.NewInt64(0),
		misses:    atomic.NewInt64(0),
		builds:    atomic.NewInt64(0),
		failures:  atomic.NewInt64(0),
		evictions: atomic.NewInt64(0),
	}, nil
}

// GetOrBuild returns the cached form for fingerprint or builds it. Callers
// arriving while a build is in flight wait for that build and receive the
// same form.
func (c *ArtifactCache) GetOrBuild(ctx context.Context, fingerprint string, build BuildFunc) (*domain.Form, error) {
	if !c.cfg.Enabled || fingerprint == "" {
		return c.run(ctx, fingerprint, build)
	}

	if form, ok := c.lookup(fingerprint); ok {
		c.hit()
		return form, nil
	}
	c.miss()

	select {
	case res := <-c.flight(ctx, fingerprint, build, false):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Form), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetOrBuildAsync is GetOrBuild without blocking the caller. Concurrent
// builds across fingerprints are bounded by MaxAsyncBuilds.
func (c *ArtifactCache) GetOrBuildAsync(ctx context.Context, fingerprint string, build BuildFunc) *Future {
	if c.cfg.Enabled && fingerprint != "" {
		if form, ok := c.lookup(fingerprint); ok {
			c.hit()
			return resolvedFuture(form, nil)
		}
		c.miss()
	}

	future := newFuture()
	detached := context.WithoutCancel(ctx)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		if !c.cfg.Enabled || fingerprint == "" {
			future.resolve(c.runBounded(detached, fingerprint, build))
			return
		}
		res := <-c.flight(detached, fingerprint, build, true)
		if res.Err != nil {
			future.resolve(nil, res.Err)
			return
		}
		future.resolve(res.Val.(*domain.Form), nil)
	}()

	return future
}

// BuildAsync runs build in the background without caching the result.
func (c *ArtifactCache) BuildAsync(ctx context.Context, build BuildFunc) *Future {
	future := newFuture()
	detached := context.WithoutCancel(ctx)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		future.resolve(c.runBounded(detached, "", build))
	}()
	return future
}

func (c *ArtifactCache) Put(fingerprint string, form *domain.Form) {
	if fingerprint == "" || form == nil {
		return
	}
	if form.Fingerprint == "" {
		form.Fingerprint = fingerprint
	}
	if form.BuiltAt.IsZero() {
		form.BuiltAt = c.clock.Now()
	}
	c.store(fingerprint, form)
}

func (c *ArtifactCache) Contains(fingerprint string) bool {
	_, ok := c.lookup(fingerprint)
	return ok
}

func (c *ArtifactCache) Invalidate(fingerprint string) bool {
	return c.entries.Remove(fingerprint)
}

func (c *ArtifactCache) Purge() {
	c.entries.Purge()
}

func (c *ArtifactCache) Len() int {
	return c.entries.Len()
}

func (c *ArtifactCache) Stats() CacheStats {
	stats := CacheStats{
		Size:      c.entries.Len(),
		MaxSize:   c.cfg.MaxEntries,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Builds:    c.builds.Load(),
		Failures:  c.failures.Load(),
		Evictions: c.evictions.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Wait blocks until background builds started so far have finished.
func (c *ArtifactCache) Wait() {
	c.pending.Wait()
}

func (c *ArtifactCache) flight(ctx context.Context, fingerprint string, build BuildFunc, bounded bool) <-chan singleflight.Result {
	return c.group.DoChan(fingerprint, func() (any, error) {
		// A build that finished between the caller's miss and this flight
		// already stored its result.
		if form, ok := c.lookup(fingerprint); ok {
			return form, nil
		}

		var (
			form *domain.Form
			err  error
		)
		if bounded {
			form, err = c.runBounded(ctx, fingerprint, build)
		} else {
			form, err = c.run(ctx, fingerprint, build)
		}
		if err != nil {
			return nil, err
		}
		c.store(fingerprint, form)
		return form, nil
	})
}

func (c *ArtifactCache) runBounded(ctx context.Context, fingerprint string, build BuildFunc) (*domain.Form, error) {
	if err := c.async.Acquire(ctx, 1); err != nil {
		return nil, &domain.BuildError{Fingerprint: fingerprint, Err: err}
	}
	defer c.async.Release(1)
	return c.run(ctx, fingerprint, build)
}

// run invokes build once, turning errors, panics and nil forms into a
// *domain.BuildError.
func (c *ArtifactCache) run(ctx context.Context, fingerprint string, build BuildFunc) (form *domain.Form, err error) {
	start := c.clock.Now()
	c.builds.Inc()

	defer func() {
		if r := recover(); r != nil {
			form = nil
			err = &domain.BuildError{Fingerprint: fingerprint, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			c.failures.Inc()
			c.logger.Warn("form build failed", "fingerprint", fingerprint, "error", err)
		}
		c.metrics.CacheBuild(c.clock.Now().Sub(start), err)
	}()

	form, err = build(context.WithoutCancel(ctx))
	if err != nil {
		return nil, &domain.BuildError{Fingerprint: fingerprint, Err: err}
	}
	if form == nil {
		return nil, &domain.BuildError{Fingerprint: fingerprint, Err: errors.New("builder returned no form")}
	}
	if form.Fingerprint == "" {
		form.Fingerprint = fingerprint
	}
	if form.BuiltAt.IsZero() {
		form.BuiltAt = c.clock.Now()
	}
	return form, nil
}

func (c *ArtifactCache) lookup(fingerprint string) (*domain.Form, bool) {
	form, ok := c.entries.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(form.BuiltAt) > c.cfg.MaxAge {
		c.entries.Remove(fingerprint)
		return nil, false
	}
	return form, true
}

func (c *ArtifactCache) store(fingerprint string, form *domain.Form) {
	if evicted := c.entries.Add(fingerprint, form); evicted {
		c.evictions.Inc()
		c.metrics.CacheEviction()
	}
}

func (c *ArtifactCache) hit() {
	c.hits.Inc()
	c.metrics.CacheHit()
}

func (c *ArtifactCache) miss() {
	c.misses.Inc()
	c.metrics.CacheMiss()
}
