package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/formflow/internal/domain"
)

// Session is the per-connection view of the engine used by transports and
// screens.
type Session struct {
	id     domain.SessionID
	engine *Engine
}

func (s *Session) ID() domain.SessionID {
	return s.id
}

// Current returns the frame on top of the stack.
func (s *Session) Current() (domain.Frame, bool) {
	top, ok := s.engine.nav.Top(s.id)
	return top.Frame, ok
}

func (s *Session) Depth() int {
	return s.engine.nav.Depth(s.id)
}

// Open pushes screen and presents it. On a session with no frames this
// makes screen the root.
func (s *Session) Open(ctx context.Context, screen Screen) error {
	if err := s.check(); err != nil {
		return err
	}
	if screen == nil {
		return errors.New("open screen: nil screen")
	}

	s.engine.timeouts.Cancel(s.id)
	frame := s.engine.nav.Push(s.id, screen)
	s.engine.metrics.ActiveSessions(s.engine.nav.Sessions())

	return s.engine.present(ctx, s, presentation{
		entry:  StackEntry{Frame: frame, Screen: screen},
		pushed: true,
	})
}

// Submit hands a response to the screen on top and applies its outcome.
// Responses for a frame that is no longer on top fail with
// domain.ErrStaleResponse and change nothing.
func (s *Session) Submit(ctx context.Context, resp domain.Response) error {
	if err := s.check(); err != nil {
		return err
	}

	top, ok := s.engine.nav.Top(s.id)
	if !ok {
		return domain.ErrNoActiveFrame
	}
	if resp.Frame != 0 && resp.Frame != top.Frame.Seq {
		return domain.ErrStaleResponse
	}

	s.engine.timeouts.Cancel(s.id)

	// A panicking handler aborts back to the previous screen.
	outcome := Fail(FailAbort, errors.New("response handler panicked"))
	logger := s.engine.logger.With("session", s.id, "screen", top.Frame.Screen)
	s.engine.guard(logger, "response", func() {
		outcome = top.Screen.OnResponse(ctx, s, resp)
	})

	return s.apply(ctx, top, outcome)
}

func (s *Session) apply(ctx context.Context, top StackEntry, outcome Outcome) error {
	switch outcome.Effect() {
	case EffectStay:
		return nil
	case EffectOpen:
		return s.Open(ctx, outcome.Next())
	case EffectBack:
		return s.back(ctx, top.Frame.Seq, outcome.Data(), true)
	case EffectReopen:
		return s.Reopen(ctx)
	case EffectClose:
		return s.Close(ctx)
	case EffectFail:
		return s.fail(ctx, top, outcome)
	default:
		return fmt.Errorf("apply outcome: unknown effect %d", outcome.Effect())
	}
}

func (s *Session) fail(ctx context.Context, top StackEntry, outcome Outcome) error {
	logger := s.engine.logger.With("session", s.id, "screen", top.Frame.Screen, "kind", outcome.Failure())
	if err := outcome.Err(); err != nil {
		logger.Info("screen reported failure", "error", err)
	}

	switch outcome.Failure() {
	case FailValidation:
		details := outcome.Details()
		if len(details) == 0 && outcome.Err() != nil {
			details = []string{outcome.Err().Error()}
		}
		return s.ShowValidationErrors(ctx, details)
	case FailRetry:
		return s.Reopen(ctx)
	default:
		return s.back(ctx, top.Frame.Seq, nil, true)
	}
}

// Back pops the current frame and returns to the one below, handing it
// data. Popping the last frame closes the session's menu.
func (s *Session) Back(ctx context.Context, data any) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.back(ctx, 0, data, true)
}

// BackWithState goes back carrying the payload the current screen left
// under its "last" key, if any.
func (s *Session) BackWithState(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	top, ok := s.engine.nav.Top(s.id)
	if !ok {
		return nil
	}

	last, found, err := s.engine.store.Restore(ctx, domain.LastStateKey(s.id, top.Frame.Screen))
	if err != nil {
		return fmt.Errorf("restore last state: %w", err)
	}
	if found && len(last) > 0 {
		return s.back(ctx, top.Frame.Seq, last, true)
	}
	return s.back(ctx, top.Frame.Seq, nil, true)
}

func (s *Session) back(ctx context.Context, seq uint64, data any, notifyClosed bool) error {
	_, top, ok := s.engine.nav.Pop(s.id, seq)
	if !ok {
		return nil
	}
	s.engine.timeouts.Cancel(s.id)
	s.engine.metrics.ActiveSessions(s.engine.nav.Sessions())

	if top.IsZero() {
		if !notifyClosed {
			return nil
		}
		return s.notify(ctx, domain.Notice{Kind: domain.NoticeClosed})
	}

	if resumer, ok := top.Screen.(Resumer); ok {
		logger := s.engine.logger.With("session", s.id, "screen", top.Frame.Screen)
		s.engine.guard(logger, "resume", func() {
			resumer.Resume(ctx, s, data)
		})
	}

	return s.engine.present(ctx, s, presentation{entry: top})
}

// Reopen presents the current frame again, for example after a failed
// validation.
func (s *Session) Reopen(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	top, ok := s.engine.nav.Top(s.id)
	if !ok {
		return domain.ErrNoActiveFrame
	}
	s.engine.timeouts.Cancel(s.id)
	return s.engine.present(ctx, s, presentation{entry: top})
}

// OpenPreserving keeps the current screen's in-progress state under its
// "forward" key before opening screen.
func (s *Session) OpenPreserving(ctx context.Context, screen Screen) error {
	if err := s.check(); err != nil {
		return err
	}

	if top, ok := s.engine.nav.Top(s.id); ok {
		if reporter, ok := top.Screen.(StateReporter); ok {
			state := reporter.CurrentState()
			if err := s.engine.store.Save(ctx, domain.ForwardStateKey(s.id, top.Frame.Screen), state, 0); err != nil {
				return fmt.Errorf("save forward state: %w", err)
			}
		}
	}
	return s.Open(ctx, screen)
}

// Close empties the stack and tells the session its menu is gone. Saved
// state is kept.
func (s *Session) Close(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	s.engine.nav.Clear(s.id)
	s.engine.timeouts.Cancel(s.id)
	s.engine.metrics.ActiveSessions(s.engine.nav.Sessions())
	return s.notify(ctx, domain.Notice{Kind: domain.NoticeClosed})
}

// CancelAll drops the stack, the pending timeout and every state key the
// session owns.
func (s *Session) CancelAll(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.engine.release(ctx, s.id)
}

// CancelWorkflow clears the workflow and everything else the session holds,
// then tells the session.
func (s *Session) CancelWorkflow(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	var errs []error
	if err := s.ClearWorkflow(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.engine.release(ctx, s.id); err != nil {
		errs = append(errs, err)
	}
	if err := s.notify(ctx, domain.Notice{Kind: domain.NoticeWorkflowCancelled}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ShowValidationErrors notifies the session of rejected input and shows
// the current form again.
func (s *Session) ShowValidationErrors(ctx context.Context, details []string) error {
	if err := s.check(); err != nil {
		return err
	}

	if err := s.notify(ctx, domain.Notice{Kind: domain.NoticeValidation, Details: details}); err != nil {
		s.engine.logger.Warn("validation notice failed", "session", s.id, "error", err)
	}
	return s.Reopen(ctx)
}

// CachedArtifact returns the form cached under fingerprint, building it
// with build on a miss.
func (s *Session) CachedArtifact(ctx context.Context, fingerprint string, build BuildFunc) (*domain.Form, error) {
	return s.engine.cache.GetOrBuild(ctx, fingerprint, build)
}

func (s *Session) AsyncArtifact(ctx context.Context, fingerprint string, build BuildFunc) *Future {
	return s.engine.cache.GetOrBuildAsync(ctx, fingerprint, build)
}

// SaveStep records payload as step of the session's workflow.
func (s *Session) SaveStep(ctx context.Context, step string, payload domain.Payload) error {
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	if err := s.engine.store.Update(ctx, domain.WorkflowKey(s.id), domain.Payload{step: payload.Clone()}); err != nil {
		return fmt.Errorf("save workflow step %q: %w", step, err)
	}
	return nil
}

// RestoreWorkflow returns the saved steps keyed by step name.
func (s *Session) RestoreWorkflow(ctx context.Context) (map[string]domain.Payload, error) {
	if !s.id.Valid() {
		return nil, domain.ErrInvalidSession
	}
	raw, ok, err := s.engine.store.Restore(ctx, domain.WorkflowKey(s.id))
	if err != nil {
		return nil, fmt.Errorf("restore workflow: %w", err)
	}

	steps := make(map[string]domain.Payload, len(raw))
	if !ok {
		return steps, nil
	}
	for step, value := range raw {
		if payload, ok := domain.AsPayload(value); ok {
			steps[step] = payload
		}
	}
	return steps, nil
}

func (s *Session) ClearWorkflow(ctx context.Context) error {
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	if err := s.engine.store.Clear(ctx, domain.WorkflowKey(s.id)); err != nil {
		return fmt.Errorf("clear workflow: %w", err)
	}
	return nil
}

func (s *Session) SaveFormState(ctx context.Context, key string, payload domain.Payload) error {
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	if err := s.engine.store.Save(ctx, domain.ScopedKey(s.id, key), payload, 0); err != nil {
		return fmt.Errorf("save form state %q: %w", key, err)
	}
	return nil
}

// RestoreFormState returns the saved payload or an empty one.
func (s *Session) RestoreFormState(ctx context.Context, key string) (domain.Payload, error) {
	if !s.id.Valid() {
		return nil, domain.ErrInvalidSession
	}
	payload, ok, err := s.engine.store.Restore(ctx, domain.ScopedKey(s.id, key))
	if err != nil {
		return nil, fmt.Errorf("restore form state %q: %w", key, err)
	}
	if !ok {
		return domain.Payload{}, nil
	}
	return payload, nil
}

// RestoreFormStateOr restores key or, when nothing is saved, stores and
// returns the result of fallback.
func (s *Session) RestoreFormStateOr(ctx context.Context, key string, fallback func() domain.Payload) (domain.Payload, error) {
	if !s.id.Valid() {
		return nil, domain.ErrInvalidSession
	}
	payload, ok, err := s.engine.store.Restore(ctx, domain.ScopedKey(s.id, key))
	if err != nil {
		return nil, fmt.Errorf("restore form state %q: %w", key, err)
	}
	if ok {
		return payload, nil
	}

	payload = fallback()
	if err := s.SaveFormState(ctx, key, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Session) ClearFormState(ctx context.Context, key string) error {
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	if err := s.engine.store.Clear(ctx, domain.ScopedKey(s.id, key)); err != nil {
		return fmt.Errorf("clear form state %q: %w", key, err)
	}
	return nil
}

// Recovery returns what the last timed-out screen was holding.
func (s *Session) Recovery(ctx context.Context) (domain.Payload, bool, error) {
	if !s.id.Valid() {
		return nil, false, domain.ErrInvalidSession
	}
	payload, ok, err := s.engine.store.Restore(ctx, domain.RecoveryKey(s.id))
	if err != nil {
		return nil, false, fmt.Errorf("restore timeout recovery: %w", err)
	}
	return payload, ok, nil
}

func (s *Session) ClearRecovery(ctx context.Context) error {
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	if err := s.engine.store.Clear(ctx, domain.RecoveryKey(s.id)); err != nil {
		return fmt.Errorf("clear timeout recovery: %w", err)
	}
	return nil
}

// Post leaves payload for whichever screen later takes step.
func (s *Session) Post(ctx context.Context, step string, payload domain.Payload) error {
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	if err := s.engine.store.Save(ctx, domain.MailboxKey(s.id, step), payload, 0); err != nil {
		return fmt.Errorf("post to mailbox %q: %w", step, err)
	}
	return nil
}

// Take removes and returns the payload posted for step.
func (s *Session) Take(ctx context.Context, step string) (domain.Payload, bool, error) {
	if !s.id.Valid() {
		return nil, false, domain.ErrInvalidSession
	}
	key := domain.MailboxKey(s.id, step)
	payload, ok, err := s.engine.store.Restore(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("take from mailbox %q: %w", step, err)
	}
	if !ok {
		return nil, false, nil
	}
	if err := s.engine.store.Clear(ctx, key); err != nil {
		return nil, false, fmt.Errorf("take from mailbox %q: %w", step, err)
	}
	return payload, true, nil
}

func (s *Session) notify(ctx context.Context, notice domain.Notice) error {
	if err := s.engine.sender.Notify(ctx, s.id, notice); err != nil {
		return &domain.DeliveryError{Session: s.id, Err: err}
	}
	return nil
}

func (s *Session) check() error {
	if s.engine.closed.Load() {
		return domain.ErrEngineClosed
	}
	if !s.id.Valid() {
		return domain.ErrInvalidSession
	}
	return nil
}
