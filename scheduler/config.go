package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

// DefaultCooldown is the minimum interval between accepted requests from an
// ordinary caller when Opts.Cooldown is left zero.
const DefaultCooldown = 3 * time.Second

// PrivilegeFunc resolves whether a caller is privileged.  It is queried once
// per Submit call, outside the admission critical section, and may block on
// I/O.  Privileged callers bypass the cooldown and are dispatched ahead of
// all ordinary callers.
type PrivilegeFunc func(ctx context.Context, callerID string) (bool, error)

// ReportFunc receives processing failures so the embedding application can
// notify the original submitter.  It is invoked by the dispatch loop after
// the callback for req failed, and by Stop for every discarded request with
// ErrStopped.
type ReportFunc[T any] func(req Request[T], err error)

// Opts configures a Scheduler via New.
type Opts[T any] struct {
	// Cooldown is the minimum interval between accepted requests from a
	// single ordinary caller.  Zero selects DefaultCooldown; negative
	// values panic.
	Cooldown time.Duration

	// IsPrivileged resolves caller privilege.  When nil every caller is
	// ordinary.
	IsPrivileged PrivilegeFunc

	// Report, when set, is told about processing failures and discarded
	// requests.  Rejections returned by Submit are never reported here.
	Report ReportFunc[T]

	// Logger receives dispatch loop events.  The zero Logger discards
	// everything.
	Logger logr.Logger

	// Clock supplies enqueue timestamps, cooldown arithmetic, and the
	// failure backoff timer.  Nil selects the real clock.
	Clock clock.Clock

	// Registerer, when set, gets the scheduler's metric collectors
	// registered on it.
	Registerer prometheus.Registerer
}

func (o Opts[T]) validate() {
	if o.Cooldown < 0 {
		panic("scheduler: cooldown must not be negative")
	}
}

func (o Opts[T]) cooldown() time.Duration {
	if o.Cooldown == 0 {
		return DefaultCooldown
	}
	return o.Cooldown
}

func (o Opts[T]) clock() clock.Clock {
	if o.Clock == nil {
		return clock.RealClock{}
	}
	return o.Clock
}
