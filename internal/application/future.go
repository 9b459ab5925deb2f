package application

import (
	"context"
	"errors"

	"github.com/bnema/formflow/internal/domain"
)

var ErrFuturePending = errors.New("artifact not ready")

// Future is the eventual result of an asynchronous build.
type Future struct {
	done chan struct{}
	form *domain.Form
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(form *domain.Form, err error) *Future {
	f := newFuture()
	f.resolve(form, err)
	return f
}

func (f *Future) resolve(form *domain.Form, err error) {
	f.form = form
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done. Giving up
// does not cancel the build.
func (f *Future) Await(ctx context.Context) (*domain.Form, error) {
	select {
	case <-f.done:
		return f.form, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrFuturePending.
func (f *Future) Result() (*domain.Form, error) {
	select {
	case <-f.done:
		return f.form, f.err
	default:
		return nil, ErrFuturePending
	}
}
