package ports

import (
	"context"
	"time"
)

type Timer interface {
	// Stop reports whether the call prevented the callback from running.
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (Timer, error)
	Shutdown(ctx context.Context) error
}
