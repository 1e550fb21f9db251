// Package futures provides a single-completion future used to observe the
// outcome of an asynchronously dispatched request.  A future is handed to the
// submitter when a request is admitted and is completed exactly once by the
// dispatcher, with either the processing result or the failure.  Unlike a
// bare channel the completed value can be read any number of times by any
// number of goroutines.
package futures

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrDiscarded is the error a future is failed with when its request is
// thrown away without ever being processed.
var ErrDiscarded = errors.New("request discarded before processing")

// Future eventually holds the result of processing a single request.
//
// A future is completed at most once: the first call to Complete, Fail or
// Discard wins and every later completion attempt is ignored.  Get and Done
// may be called before, during, or after completion from any goroutine.
type Future[R any] struct {
	completed atomic.Bool
	done      chan struct{}

	value R
	err   error
}

// New creates an uncompleted future.
func New[R any]() *Future[R] {
	return &Future[R]{
		done: make(chan struct{}),
	}
}

// Complete resolves the future successfully with value.
// It reports whether this call was the one that completed the future.
func (f *Future[R]) Complete(value R) bool {
	return f.resolve(value, nil)
}

// Fail resolves the future with err.
// It reports whether this call was the one that completed the future.
func (f *Future[R]) Fail(err error) bool {
	return f.resolve(*new(R), err)
}

// Discard fails the future with ErrDiscarded.
func (f *Future[R]) Discard() bool {
	return f.Fail(ErrDiscarded)
}

func (f *Future[R]) resolve(value R, err error) bool {
	if !f.completed.CompareAndSwap(false, true) {
		return false
	}
	f.value = value
	f.err = err
	close(f.done)
	return true
}

// Done returns a channel that is closed once the future is completed.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Get returns the completed value and error, blocking until the future is
// completed or ctx is canceled.  A ctx cancellation is reported as ctx.Err()
// and does not complete the future.
func (f *Future[R]) Get(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return *new(R), ctx.Err()
	}
}
