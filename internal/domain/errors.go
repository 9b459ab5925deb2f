package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveFrame   = errors.New("no active frame")
	ErrStaleResponse   = errors.New("response for a frame that is no longer current")
	ErrSchedulerClosed = errors.New("scheduler closed")
	ErrEngineClosed    = errors.New("engine closed")
	ErrInvalidSession  = errors.New("invalid session id")
	ErrSnapshotVersion = errors.New("unsupported snapshot schema version")
)

// BuildError reports a failed artifact build. Failed builds are never cached.
type BuildError struct {
	Fingerprint string
	Err         error
}

func (e *BuildError) Error() string {
	if e.Fingerprint == "" {
		return fmt.Sprintf("build form: %v", e.Err)
	}
	return fmt.Sprintf("build form %q: %v", e.Fingerprint, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// DeliveryError reports that the sender rejected a form or notice, or the
// session could not be reached.
type DeliveryError struct {
	Session SessionID
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to session %s: %v", e.Session, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func IsBuildFailure(err error) bool {
	var buildErr *BuildError
	return errors.As(err, &buildErr)
}

func IsDeliveryFailure(err error) bool {
	var deliveryErr *DeliveryError
	return errors.As(err, &deliveryErr)
}
