package application

import (
	"context"
	"time"

	"github.com/bnema/formflow/internal/domain"
)

// Screen is one step of a form flow. Build produces the form to show and
// OnResponse decides what happens after the user answers it.
type Screen interface {
	Name() string
	Build(ctx context.Context, s *Session) (*domain.Form, error)
	OnResponse(ctx context.Context, s *Session, resp domain.Response) Outcome
}

// Cacheable screens share built forms between sessions that produce the
// same fingerprint. An empty fingerprint disables caching for that build.
type Cacheable interface {
	Fingerprint(s *Session) string
}

// AsyncScreen screens are built off the request path; the session gets a
// loading notice first and the form once it is ready.
type AsyncScreen interface {
	BuildAsync() bool
}

// Resumer receives the data passed by a screen that popped back to it.
type Resumer interface {
	Resume(ctx context.Context, s *Session, data any)
}

// StateReporter exposes in-progress input so it can be kept when the
// session times out or navigates forward.
type StateReporter interface {
	CurrentState() domain.Payload
}

type TimeoutScreen interface {
	Timeout() time.Duration
}

// FallbackScreen offers a replacement when its form could not be
// delivered. Returning nil gives up and pops the frame.
type FallbackScreen interface {
	Fallback(ctx context.Context, s *Session, err error) Screen
}

// FailureHandler is told when an asynchronous presentation fails after
// Open has already returned.
type FailureHandler interface {
	OnFailure(ctx context.Context, s *Session, err error)
}
