package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/formflow/internal/domain"
)

// SessionView is a read-only picture of one session.
type SessionView struct {
	ID          domain.SessionID
	Frames      []domain.Frame
	TimeoutAt   time.Time
	TimeoutOn   domain.Frame
	StateKeys   []string
	HasRecovery bool
}

func (v SessionView) Depth() int {
	return len(v.Frames)
}

func (v SessionView) Top() (domain.Frame, bool) {
	if len(v.Frames) == 0 {
		return domain.Frame{}, false
	}
	return v.Frames[len(v.Frames)-1], true
}

func (e *Engine) Inspect(ctx context.Context, id domain.SessionID) (SessionView, error) {
	view := SessionView{
		ID:     id,
		Frames: e.nav.Frames(id),
	}
	if deadline, frame, ok := e.timeouts.Active(id); ok {
		view.TimeoutAt = deadline
		view.TimeoutOn = frame
	}

	keys, err := e.store.Keys(ctx, domain.SessionPrefix(id))
	if err != nil {
		return SessionView{}, fmt.Errorf("list session state: %w", err)
	}
	view.StateKeys = keys
	for _, key := range keys {
		if key == domain.RecoveryKey(id) {
			view.HasRecovery = true
		}
	}

	return view, nil
}
