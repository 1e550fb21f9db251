package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateRequest rejects a submission from a caller that already
	// has a request queued or in service.
	ErrDuplicateRequest = errors.New("caller already has a request in flight")

	// ErrStopped rejects submissions made after Stop.  Requests that were
	// already queued when Stop ran fail their futures with
	// futures.ErrDiscarded instead.
	ErrStopped = errors.New("scheduler has been stopped")
)

// RateLimitedError rejects a submission made before the caller's cooldown
// has elapsed.
type RateLimitedError struct {
	// RetryAfter is the remaining wait before the caller becomes
	// eligible again.  Always positive.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %v", e.RetryAfter)
}
