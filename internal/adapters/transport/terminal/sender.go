package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bnema/formflow/internal/adapters/render/form"
	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
)

var errTerminalClosed = errors.New("deliver form: terminal closed")

type Renderer func(*domain.Form, form.RenderOptions) (string, error)

// Sender writes every form and notice for a single local session to an
// io.Writer. It remembers the last delivery so input can be matched to it.
type Sender struct {
	mu      sync.Mutex
	out     io.Writer
	session domain.SessionID
	render  Renderer
	clock   ports.Clock

	last        domain.Delivery
	deliveredAt time.Time
	closed      bool
	changed     chan struct{}
}

func NewSender(out io.Writer, session domain.SessionID, render Renderer, clock ports.Clock) *Sender {
	if render == nil {
		render = form.Render
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Sender{out: out, session: session, render: render, clock: clock, changed: make(chan struct{})}
}

func (s *Sender) Deliver(ctx context.Context, delivery domain.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delivery.Session != s.session {
		return fmt.Errorf("deliver form: unknown session %q", delivery.Session)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errTerminalClosed
	}

	rendered, err := s.render(delivery.Form, form.RenderOptions{Frame: delivery.Frame})
	if err != nil {
		return fmt.Errorf("render form: %w", err)
	}
	if _, err := fmt.Fprintln(s.out, "\n"+rendered); err != nil {
		return fmt.Errorf("write form: %w", err)
	}
	s.last = delivery
	s.deliveredAt = s.clock.Now()
	s.signal()
	return nil
}

func (s *Sender) Notify(ctx context.Context, id domain.SessionID, notice domain.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id != s.session {
		return fmt.Errorf("send notice: unknown session %q", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if notice.Kind == domain.NoticeClosed || notice.Kind == domain.NoticeWorkflowCancelled {
		s.last = domain.Delivery{}
	}
	defer s.signal()
	if _, err := fmt.Fprintln(s.out, form.RenderNotice(notice)); err != nil {
		return fmt.Errorf("write notice: %w", err)
	}
	return nil
}

// Changed returns a channel closed by the next form or notice written.
// Take it before inspecting Last so no write is missed in between.
func (s *Sender) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Sender) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Sender) IsReachable(id domain.SessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id == s.session && !s.closed
}

// Last returns the most recent form written, if the menu is still open.
func (s *Sender) Last() (domain.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last.Form != nil
}

// DeliveredAt is when the last form was written.
func (s *Sender) DeliveredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveredAt
}

func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.signal()
	}
}
