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
	"go.uber.org/atomic"
)

const DefaultScreenTimeout = 300 * time.Second

type EngineConfig struct {
	// DefaultTimeout applies to screens that do not implement TimeoutScreen.
	// Zero or less disables timeouts for them.
	DefaultTimeout  time.Duration
	FallbackEnabled bool
	Cache           CacheConfig
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTimeout:  DefaultScreenTimeout,
		FallbackEnabled: true,
		Cache:           DefaultCacheConfig(),
	}
}

type Deps struct {
	Store     ports.StateStore
	Scheduler ports.Scheduler
	Sender    ports.Sender
	Presence  ports.Presence
	// Snapshots is optional; it is used only with stores that implement
	// ports.Snapshotter.
	Snapshots ports.SnapshotRepository
	Clock     ports.Clock
	Logger    *slog.Logger
	Metrics   ports.Metrics
}

type EngineStats struct {
	ActiveSessions  int
	PendingTimeouts int
	StateEntries    int
	Cache           CacheStats
}

// Engine owns the navigation stacks, timeouts and artifact cache shared by
// every session. Hand out sessions with Session.
type Engine struct {
	cfg       EngineConfig
	store     ports.StateStore
	scheduler ports.Scheduler
	sender    ports.Sender
	presence  ports.Presence
	snapshots ports.SnapshotRepository
	clock     ports.Clock
	logger    *slog.Logger
	metrics   ports.Metrics

	nav      *Navigator
	timeouts *TimeoutTracker
	cache    *ArtifactCache

	closed *atomic.Bool
	async  sync.WaitGroup
}

type alwaysReachable struct{}

func (alwaysReachable) IsReachable(domain.SessionID) bool { return true }

func NewEngine(cfg EngineConfig, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine requires a state store")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("engine requires a scheduler")
	}
	if deps.Sender == nil {
		return nil, errors.New("engine requires a sender")
	}
	if deps.Presence == nil {
		deps.Presence = alwaysReachable{}
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}

	cache, err := NewArtifactCache(cfg.Cache, deps.Clock, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		sender:    deps.Sender,
		presence:  deps.Presence,
		snapshots: deps.Snapshots,
		clock:     deps.Clock,
		logger:    deps.Logger.With("component", "engine"),
		metrics:   deps.Metrics,
		nav:       NewNavigator(deps.Clock),
		timeouts:  NewTimeoutTracker(deps.Scheduler, deps.Presence, deps.Sender, deps.Store, deps.Clock, deps.Logger, deps.Metrics),
		cache:     cache,
		closed:    atomic.NewBool(false),
	}
	e.timeouts.OnExpire(e.expire)

	return e, nil
}

// Session returns the handle for id. Handles are cheap; all state lives in
// the engine.
func (e *Engine) Session(id domain.SessionID) *Session {
	return &Session{id: id, engine: e}
}

func (e *Engine) Navigator() *Navigator {
	return e.nav
}

func (e *Engine) Timeouts() *TimeoutTracker {
	return e.timeouts
}

func (e *Engine) Cache() *ArtifactCache {
	return e.cache
}

func (e *Engine) Store() ports.StateStore {
	return e.store
}

// Disconnect releases everything held for id without notifying it.
func (e *Engine) Disconnect(ctx context.Context, id domain.SessionID) error {
	if !id.Valid() {
		return domain.ErrInvalidSession
	}
	return e.release(ctx, id)
}

func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	entries, err := e.store.Len(ctx)
	if err != nil {
		return EngineStats{}, fmt.Errorf("count state entries: %w", err)
	}
	e.metrics.StateEntries(entries)

	return EngineStats{
		ActiveSessions:  e.nav.Sessions(),
		PendingTimeouts: e.timeouts.Pending(),
		StateEntries:    entries,
		Cache:           e.cache.Stats(),
	}, nil
}

// LoadSnapshot restores state saved by a previous Shutdown. It returns the
// number of entries loaded; stores without snapshot support load nothing.
func (e *Engine) LoadSnapshot(ctx context.Context) (int, error) {
	snapshotter, ok := e.store.(ports.Snapshotter)
	if !ok || e.snapshots == nil {
		return 0, nil
	}

	entries, err := e.snapshots.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load state snapshot: %w", err)
	}
	return snapshotter.Load(entries), nil
}

// Shutdown stops timers, waits for background presentations, snapshots
// the store when possible and closes it. Later session calls fail with
// domain.ErrEngineClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := e.scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown scheduler: %w", err))
	}
	if n := e.timeouts.Close(); n > 0 {
		e.logger.Info("cancelled pending timeouts", "count", n)
	}

	waited := make(chan struct{})
	go func() {
		e.async.Wait()
		e.cache.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for async presentations: %w", ctx.Err()))
	}

	if snapshotter, ok := e.store.(ports.Snapshotter); ok && e.snapshots != nil {
		entries := snapshotter.Snapshot()
		if err := e.snapshots.Save(ctx, entries); err != nil {
			e.logger.Warn("state snapshot failed", "error", err)
		} else {
			e.logger.Info("state snapshot saved", "entries", len(entries))
		}
	}

	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close state store: %w", err))
	}

	return errors.Join(errs...)
}

func (e *Engine) release(ctx context.Context, id domain.SessionID) error {
	e.nav.Clear(id)
	e.timeouts.Release(id)
	e.metrics.ActiveSessions(e.nav.Sessions())

	if _, err := e.store.ClearPrefix(ctx, domain.SessionPrefix(id)); err != nil {
		return fmt.Errorf("release session state: %w", err)
	}
	return nil
}

// expire pops the frame that timed out, if it is still on top, and shows
// what is underneath.
func (e *Engine) expire(ctx context.Context, id domain.SessionID, seq uint64) {
	s := e.Session(id)
	if err := s.back(ctx, seq, nil, false); err != nil {
		e.logger.Warn("return after timeout failed", "session", id, "error", err)
	}
}

type presentation struct {
	entry    StackEntry
	pushed   bool
	fallback bool
}

// present builds and delivers the form of p.entry. A failed build of a
// freshly pushed frame rolls the push back.
func (e *Engine) present(ctx context.Context, s *Session, p presentation) error {
	if async, ok := p.entry.Screen.(AsyncScreen); ok && async.BuildAsync() {
		e.presentAsync(ctx, s, p)
		return nil
	}

	form, err := e.build(ctx, s, p.entry.Screen)
	if err != nil {
		if p.pushed {
			e.dropFrame(s.id, p.entry.Frame.Seq)
		}
		return err
	}

	return e.deliver(ctx, s, p, form)
}

func (e *Engine) presentAsync(ctx context.Context, s *Session, p presentation) {
	logger := e.logger.With("session", s.id, "screen", p.entry.Frame.Screen)
	if err := e.sender.Notify(ctx, s.id, domain.Notice{Kind: domain.NoticeLoading}); err != nil {
		logger.Warn("loading notice failed", "error", err)
	}

	future := e.artifact(ctx, s, p.entry.Screen)
	detached := context.WithoutCancel(ctx)

	e.async.Add(1)
	go func() {
		defer e.async.Done()

		form, err := future.Await(detached)
		if !e.nav.IsTop(s.id, p.entry.Frame.Seq) {
			logger.Debug("dropping async form for a frame no longer on top")
			return
		}
		if err == nil {
			err = e.deliver(detached, s, p, form)
			if err == nil {
				return
			}
		} else {
			// Pop first so the session is back on its previous frame by
			// the time it hears about the failure.
			e.dropFrame(s.id, p.entry.Frame.Seq)
			if notifyErr := e.sender.Notify(detached, s.id, domain.Notice{Kind: domain.NoticeLoadFailed, Message: err.Error()}); notifyErr != nil {
				logger.Warn("load failure notice failed", "error", notifyErr)
			}
		}

		logger.Warn("async presentation failed", "error", err)
		if handler, ok := p.entry.Screen.(FailureHandler); ok {
			e.guard(logger, "failure handler", func() {
				handler.OnFailure(detached, s, err)
			})
		}
	}()
}

func (e *Engine) artifact(ctx context.Context, s *Session, screen Screen) *Future {
	build := func(ctx context.Context) (*domain.Form, error) {
		return screen.Build(ctx, s)
	}
	if cacheable, ok := screen.(Cacheable); ok {
		return e.cache.GetOrBuildAsync(ctx, cacheable.Fingerprint(s), build)
	}
	return e.cache.BuildAsync(ctx, build)
}

func (e *Engine) build(ctx context.Context, s *Session, screen Screen) (*domain.Form, error) {
	build := func(ctx context.Context) (*domain.Form, error) {
		return screen.Build(ctx, s)
	}
	if cacheable, ok := screen.(Cacheable); ok {
		return e.cache.GetOrBuild(ctx, cacheable.Fingerprint(s), build)
	}
	return e.cache.run(ctx, "", build)
}

// deliver sends form and arms the frame's timeout. When the sender fails
// the screen may offer one fallback; otherwise the frame is popped. No
// timeout is armed for an undelivered form.
func (e *Engine) deliver(ctx context.Context, s *Session, p presentation, form *domain.Form) error {
	err := e.sender.Deliver(ctx, domain.Delivery{Session: s.id, Frame: p.entry.Frame.Seq, Form: form})
	e.metrics.Delivery(err)
	if err == nil {
		if d := e.timeoutFor(p.entry.Screen); d > 0 {
			if regErr := e.timeouts.Register(s.id, p.entry, d); regErr != nil {
				e.logger.Warn("timeout not armed", "session", s.id, "screen", p.entry.Frame.Screen, "error", regErr)
			}
		}
		return nil
	}

	deliveryErr := &domain.DeliveryError{Session: s.id, Err: err}
	logger := e.logger.With("session", s.id, "screen", p.entry.Frame.Screen)
	logger.Warn("form delivery failed", "error", err)

	if fallback, ok := p.entry.Screen.(FallbackScreen); ok && e.cfg.FallbackEnabled && !p.fallback {
		var alt Screen
		e.guard(logger, "fallback", func() {
			alt = fallback.Fallback(ctx, s, deliveryErr)
		})
		if alt != nil {
			if entry, replaced := e.nav.Replace(s.id, p.entry.Frame.Seq, alt); replaced {
				if altErr := e.present(ctx, s, presentation{entry: entry, fallback: true}); altErr != nil {
					e.dropFrame(s.id, entry.Frame.Seq)
					return errors.Join(deliveryErr, altErr)
				}
				return nil
			}
		}
	}

	e.dropFrame(s.id, p.entry.Frame.Seq)
	return deliveryErr
}

// dropFrame pops a frame whose form never reached the session. The frame
// below is still on screen, so its timeout is armed again.
func (e *Engine) dropFrame(id domain.SessionID, seq uint64) {
	_, top, ok := e.nav.Pop(id, seq)
	if !ok {
		return
	}
	e.metrics.ActiveSessions(e.nav.Sessions())
	if top.IsZero() {
		return
	}
	if d := e.timeoutFor(top.Screen); d > 0 {
		if err := e.timeouts.Register(id, top, d); err != nil {
			e.logger.Warn("timeout not re-armed", "session", id, "screen", top.Frame.Screen, "error", err)
		}
	}
}

func (e *Engine) timeoutFor(screen Screen) time.Duration {
	if ts, ok := screen.(TimeoutScreen); ok {
		if d := ts.Timeout(); d > 0 {
			return d
		}
	}
	return e.cfg.DefaultTimeout
}

// guard runs a screen callback, logging a panic instead of propagating it.
func (e *Engine) guard(logger *slog.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("screen callback panicked", "callback", what, "panic", r)
		}
	}()
	fn()
}
