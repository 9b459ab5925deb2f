package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	"go.uber.org/atomic"
)

// ExpireFunc is called after a timeout has been reported and its state
// kept. seq identifies the frame that timed out.
type ExpireFunc func(ctx context.Context, id domain.SessionID, seq uint64)

type timeoutJob struct {
	id       domain.SessionID
	entry    StackEntry
	duration time.Duration
	deadline time.Time
	timer    ports.Timer
	// released is set when the session is released while the job fires.
	released *atomic.Bool
}

// TimeoutTracker holds at most one pending timeout per session.
type TimeoutTracker struct {
	mu     sync.Mutex
	jobs   map[domain.SessionID]*timeoutJob
	firing map[domain.SessionID]*timeoutJob

	scheduler ports.Scheduler
	presence  ports.Presence
	sender    ports.Sender
	store     ports.StateStore
	clock     ports.Clock
	logger    *slog.Logger
	metrics   ports.Metrics
	onExpire  ExpireFunc
}

func NewTimeoutTracker(
	scheduler ports.Scheduler,
	presence ports.Presence,
	sender ports.Sender,
	store ports.StateStore,
	clock ports.Clock,
	logger *slog.Logger,
	metrics ports.Metrics,
) *TimeoutTracker {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &TimeoutTracker{
		jobs:      make(map[domain.SessionID]*timeoutJob),
		firing:    make(map[domain.SessionID]*timeoutJob),
		scheduler: scheduler,
		presence:  presence,
		sender:    sender,
		store:     store,
		clock:     clock,
		logger:    logger.With("component", "timeout_tracker"),
		metrics:   metrics,
	}
}

// OnExpire sets the hook run last when a timeout fires.
func (t *TimeoutTracker) OnExpire(fn ExpireFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Register replaces any pending timeout of the session with a new one for
// entry. The old job is cancelled in the same critical section that
// installs the new one.
func (t *TimeoutTracker) Register(id domain.SessionID, entry StackEntry, d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.jobs[id]; ok {
		prev.timer.Stop()
		delete(t.jobs, id)
	}

	job := &timeoutJob{
		id:       id,
		entry:    entry,
		duration: d,
		deadline: t.clock.Now().Add(d),
		released: atomic.NewBool(false),
	}
	timer, err := t.scheduler.AfterFunc(d, func() { t.fire(job) })
	if err != nil {
		t.metrics.PendingTimeouts(len(t.jobs))
		return fmt.Errorf("schedule timeout: %w", err)
	}
	job.timer = timer
	t.jobs[id] = job
	t.metrics.PendingTimeouts(len(t.jobs))

	return nil
}

// Cancel drops the session's pending timeout. It reports false when there
// was nothing to cancel, including when the timeout already fired.
func (t *TimeoutTracker) Cancel(id domain.SessionID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return false
	}
	job.timer.Stop()
	delete(t.jobs, id)
	t.metrics.PendingTimeouts(len(t.jobs))
	return true
}

// Release cancels the session's pending timeout and marks a firing one
// so that it does not leave state behind. Call it before clearing the
// session's keys.
func (t *TimeoutTracker) Release(id domain.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if job, ok := t.jobs[id]; ok {
		job.timer.Stop()
		delete(t.jobs, id)
		t.metrics.PendingTimeouts(len(t.jobs))
	}
	if job, ok := t.firing[id]; ok {
		job.released.Store(true)
	}
}

// Active returns the deadline and frame of the session's pending timeout.
func (t *TimeoutTracker) Active(id domain.SessionID) (deadline time.Time, frame domain.Frame, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return time.Time{}, domain.Frame{}, false
	}
	return job.deadline, job.entry.Frame, true
}

func (t *TimeoutTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Close cancels every pending timeout and returns how many there were.
func (t *TimeoutTracker) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.jobs)
	for id, job := range t.jobs {
		job.timer.Stop()
		delete(t.jobs, id)
	}
	t.metrics.PendingTimeouts(0)
	return n
}

// claim removes job from the registry if it is still the session's
// current job. Only the claimant may act on a firing, so a concurrent
// Cancel or Register wins or loses as a whole.
func (t *TimeoutTracker) claim(job *timeoutJob) (ExpireFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.jobs[job.id] != job {
		return nil, false
	}
	delete(t.jobs, job.id)
	t.firing[job.id] = job
	t.metrics.PendingTimeouts(len(t.jobs))
	return t.onExpire, true
}

func (t *TimeoutTracker) settle(job *timeoutJob) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.firing[job.id] == job {
		delete(t.firing, job.id)
	}
}

func (t *TimeoutTracker) fire(job *timeoutJob) {
	onExpire, ok := t.claim(job)
	if !ok {
		return
	}
	defer t.settle(job)

	t.metrics.TimeoutFired()
	logger := t.logger.With("session", job.id, "screen", job.entry.Frame.Screen)
	ctx := context.Background()

	if t.presence != nil && !t.presence.IsReachable(job.id) {
		logger.Info("session timed out while unreachable")
		return
	}

	t.step(logger, "notify", func() error {
		return t.sender.Notify(ctx, job.id, domain.Notice{
			Kind:    domain.NoticeTimeout,
			Seconds: int(job.duration / time.Second),
		})
	})

	t.step(logger, "keep state", func() error {
		reporter, ok := job.entry.Screen.(StateReporter)
		if !ok {
			return nil
		}
		state := reporter.CurrentState()
		if len(state) == 0 || job.released.Load() {
			return nil
		}
		key := domain.RecoveryKey(job.id)
		if err := t.store.Save(ctx, key, state, 0); err != nil {
			return err
		}
		// A release that raced the save may have cleared the session's
		// keys before this one landed.
		if job.released.Load() {
			return t.store.Clear(ctx, key)
		}
		return nil
	})

	if onExpire != nil {
		t.step(logger, "expire", func() error {
			onExpire(ctx, job.id, job.entry.Frame.Seq)
			return nil
		})
	}

	logger.Info("session timed out")
}

// step runs one part of a timeout firing. Failures and panics are logged
// so later steps still run.
func (t *TimeoutTracker) step(logger *slog.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("timeout step panicked", "step", name, "panic", r)
		}
	}()

	if err := fn(); err != nil {
		logger.Warn("timeout step failed", "step", name, "error", err)
	}
}
