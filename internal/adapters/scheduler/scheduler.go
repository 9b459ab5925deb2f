// Package scheduler runs delayed callbacks on runtime timers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
)

type Scheduler struct {
	mu       sync.Mutex
	timers   map[*timer]struct{}
	closed   bool
	inflight sync.WaitGroup
	logger   *slog.Logger
}

var _ ports.Scheduler = (*Scheduler)(nil)

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		timers: make(map[*timer]struct{}),
		logger: logger.With("component", "scheduler"),
	}
}

type timer struct {
	s *Scheduler
	t *time.Timer
}

func (t *timer) Stop() bool {
	stopped := t.t.Stop()
	if stopped {
		t.s.forget(t)
		t.s.inflight.Done()
	}
	return stopped
}

// AfterFunc runs fn after d on its own goroutine. It fails with
// domain.ErrSchedulerClosed once Shutdown has begun.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) (ports.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrSchedulerClosed
	}

	tm := &timer{s: s}
	s.inflight.Add(1)
	tm.t = time.AfterFunc(d, func() {
		defer s.inflight.Done()
		if !s.forget(tm) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled callback panicked", "panic", r)
			}
		}()
		fn()
	})
	s.timers[tm] = struct{}{}

	return tm, nil
}

// Pending reports timers that have neither fired nor been stopped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown rejects new timers, stops pending ones and waits for running
// callbacks until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pending := make([]*timer, 0, len(s.timers))
	for tm := range s.timers {
		pending = append(pending, tm)
	}
	s.mu.Unlock()

	for _, tm := range pending {
		tm.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) forget(tm *timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[tm]; !ok {
		return false
	}
	delete(s.timers, tm)
	return true
}
