package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bnema/formflow/internal/adapters/state/memory"
	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: testEpoch}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// manualScheduler fires timers only when the test advances it.
type manualScheduler struct {
	mu     sync.Mutex
	clock  *manualClock
	timers []*manualTimer
	closed bool
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	fn      func()
	done    bool
	stopped bool
}

func newManualScheduler(clock *manualClock) *manualScheduler {
	return &manualScheduler{clock: clock}
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) (ports.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSchedulerClosed
	}
	tm := &manualTimer{s: s, at: s.clock.Now().Add(d), fn: fn}
	s.timers = append(s.timers, tm)
	return tm, nil
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.stopped = true
	return true
}

func (s *manualScheduler) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, tm := range s.timers {
		tm.done = true
	}
	return nil
}

// Advance moves the clock forward and runs every timer that came due, in
// deadline order, including timers scheduled by the callbacks themselves.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.clock.Now().Add(d)
	for {
		s.mu.Lock()
		var due *manualTimer
		for _, tm := range s.timers {
			if tm.done || tm.at.After(target) {
				continue
			}
			if due == nil || tm.at.Before(due.at) {
				due = tm
			}
		}
		if due == nil {
			s.mu.Unlock()
			s.clock.set(target)
			return
		}
		due.done = true
		s.mu.Unlock()

		if due.at.After(s.clock.Now()) {
			s.clock.set(due.at)
		}
		due.fn()
	}
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tm := range s.timers {
		if !tm.done {
			n++
		}
	}
	return n
}

type notice struct {
	id     domain.SessionID
	notice domain.Notice
}

type recordingSender struct {
	mu          sync.Mutex
	deliveries  []domain.Delivery
	notices     []notice
	deliverHook func(domain.Delivery) error
}

func (r *recordingSender) Deliver(_ context.Context, delivery domain.Delivery) error {
	r.mu.Lock()
	hook := r.deliverHook
	r.mu.Unlock()
	if hook != nil {
		if err := hook(delivery); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery)
	return nil
}

func (r *recordingSender) Notify(_ context.Context, id domain.SessionID, n domain.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{id: id, notice: n})
	return nil
}

func (r *recordingSender) setDeliverHook(hook func(domain.Delivery) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverHook = hook
}

func (r *recordingSender) screens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		out = append(out, d.Form.Title)
	}
	return out
}

func (r *recordingSender) lastDelivery() domain.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deliveries) == 0 {
		return domain.Delivery{}
	}
	return r.deliveries[len(r.deliveries)-1]
}

func (r *recordingSender) noticeKinds() []domain.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.notice.Kind)
	}
	return out
}

func (r *recordingSender) lastNotice() domain.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return domain.Notice{}
	}
	return r.notices[len(r.notices)-1].notice
}

type presenceSet struct {
	mu      sync.Mutex
	offline map[domain.SessionID]bool
}

func (p *presenceSet) IsReachable(id domain.SessionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.offline[id]
}

func (p *presenceSet) drop(id domain.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline == nil {
		p.offline = map[domain.SessionID]bool{}
	}
	p.offline[id] = true
}

// fakeScreen implements every optional capability; zero fields fall back
// to the engine defaults.
type fakeScreen struct {
	name        string
	fingerprint string
	async       bool
	timeout     time.Duration
	buildErr    error
	buildGate   chan struct{}
	state       domain.Payload
	respond     func(ctx context.Context, s *Session, resp domain.Response) Outcome
	fallback    Screen

	mu       sync.Mutex
	builds   int
	resumed  []any
	failures []error
}

func (f *fakeScreen) Name() string {
	return f.name
}

func (f *fakeScreen) Build(ctx context.Context, s *Session) (*domain.Form, error) {
	if f.buildGate != nil {
		<-f.buildGate
	}
	f.mu.Lock()
	f.builds++
	f.mu.Unlock()
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &domain.Form{Kind: domain.FormKindSimple, Title: f.name}, nil
}

func (f *fakeScreen) OnResponse(ctx context.Context, s *Session, resp domain.Response) Outcome {
	if f.respond == nil {
		return Stay()
	}
	return f.respond(ctx, s, resp)
}

func (f *fakeScreen) Fingerprint(*Session) string {
	return f.fingerprint
}

func (f *fakeScreen) BuildAsync() bool {
	return f.async
}

func (f *fakeScreen) Timeout() time.Duration {
	return f.timeout
}

func (f *fakeScreen) CurrentState() domain.Payload {
	return f.state
}

func (f *fakeScreen) Resume(ctx context.Context, s *Session, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, data)
}

func (f *fakeScreen) Fallback(context.Context, *Session, error) Screen {
	return f.fallback
}

func (f *fakeScreen) OnFailure(ctx context.Context, s *Session, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

func (f *fakeScreen) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func (f *fakeScreen) resumedWith() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.resumed...)
}

func (f *fakeScreen) failuresSeen() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.failures...)
}

type harness struct {
	engine    *Engine
	clock     *manualClock
	scheduler *manualScheduler
	sender    *recordingSender
	presence  *presenceSet
	store     *memory.Store
}

func newHarness(t *testing.T, mutate ...func(*EngineConfig)) *harness {
	t.Helper()

	clock := newManualClock()
	scheduler := newManualScheduler(clock)
	sender := &recordingSender{}
	presence := &presenceSet{}
	store := memory.New(memory.Options{Clock: clock})

	cfg := DefaultEngineConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	engine, err := NewEngine(cfg, Deps{
		Store:     store,
		Scheduler: scheduler,
		Sender:    sender,
		Presence:  presence,
		Clock:     clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	return &harness{
		engine:    engine,
		clock:     clock,
		scheduler: scheduler,
		sender:    sender,
		presence:  presence,
		store:     store,
	}
}

func (h *harness) waitAsync() {
	h.engine.async.Wait()
}

func (h *harness) keys(t *testing.T, id domain.SessionID) []string {
	t.Helper()
	keys, err := h.store.Keys(context.Background(), domain.SessionPrefix(id))
	require.NoError(t, err)
	sort.Strings(keys)
	return keys
}

var errBoom = errors.New("boom")
