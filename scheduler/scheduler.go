// Package scheduler admits, orders, and sequentially dispatches requests
// submitted by many concurrent callers.
//
// Three policies are enforced at admission:
//
//   - priority: privileged callers are always dispatched ahead of ordinary
//     ones, and ahead of ordinary requests already waiting;
//   - single flight: a caller has at most one request queued or in service
//     at any time;
//   - rate limiting: ordinary callers must wait a cooldown between accepted
//     requests.  Privileged callers bypass the cooldown entirely.
//
// Admitted requests are processed strictly one at a time by a single
// dispatch loop, which starts lazily on first admission.  Stop discards any
// still-queued requests without processing them: queue state is not
// persisted, and discarded submitters learn about it through their futures
// failing with futures.ErrDiscarded (and through Opts.Report when
// configured).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/abevier/dsq/cooldown"
	"github.com/abevier/dsq/futures"
	"github.com/abevier/dsq/internal/pq"
)

// ProcessFunc handles a single dispatched request.  It is invoked exactly
// once per admitted request, only ever by the dispatch loop, and never for
// two requests at once.  The ctx it receives is not canceled by Stop: an
// in-flight callback is always allowed to finish.
type ProcessFunc[T any, R any] func(ctx context.Context, req Request[T]) (R, error)

// Request is one admitted unit of work.  It is immutable after admission.
type Request[T any] struct {
	// ID uniquely identifies the request, for logs and failure reports.
	ID string
	// CallerID identifies the submitting caller.
	CallerID string
	// Privileged records the caller's class as resolved at submission.
	Privileged bool
	// EnqueuedAt is the admission timestamp used for FIFO ordering.
	EnqueuedAt time.Time
	// Payload is the submitter-provided body of the request.
	Payload T
}

type callerState int

const (
	stateQueued callerState = iota + 1
	stateInService
)

// pending pairs a request with the future its submitter is holding.
type pending[T any, R any] struct {
	req    Request[T]
	future *futures.Future[R]
}

// Scheduler is the admission and dispatch core.  Create one with New; the
// zero value is not usable.  All methods are safe for concurrent use.
type Scheduler[T any, R any] struct {
	run          ProcessFunc[T, R]
	report       ReportFunc[T]
	isPrivileged PrivilegeFunc
	clock        clock.Clock
	logger       logr.Logger
	metrics      *metrics

	// notify wakes the dispatch loop after an insert.  Capacity one:
	// the loop drains the queue before waiting again, so coalescing
	// signals is fine.
	notify chan struct{}

	// mu spans the whole admission decision (duplicate check, cooldown,
	// queue insert, loop start) as well as the loop's pop and release
	// transitions.  Everything below is guarded by it.
	mu         sync.Mutex
	states     map[string]callerState
	queue      *pq.Queue[pending[T, R]]
	gate       *cooldown.Gate
	stopped    bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a scheduler that hands admitted requests to run.
// Panics if run is nil or opts are invalid.
func New[T any, R any](opts Opts[T], run ProcessFunc[T, R]) *Scheduler[T, R] {
	opts.validate()
	if run == nil {
		panic("scheduler: run function is required")
	}

	clk := opts.clock()

	return &Scheduler[T, R]{
		run:          run,
		report:       opts.Report,
		isPrivileged: opts.IsPrivileged,
		clock:        clk,
		logger:       opts.Logger.WithName("dsq"),
		metrics:      newMetrics(opts.Registerer),
		notify:       make(chan struct{}, 1),
		states:       make(map[string]callerState),
		queue:        pq.New[pending[T, R]](),
		gate:         cooldown.New(opts.cooldown(), clk),
	}
}

// Submit asks for payload to be processed on behalf of callerID.
//
// On admission it returns a future that completes when the dispatch loop
// has processed the request, and ensures the loop is running.  Otherwise it
// returns nil and the rejection:
//
//   - ErrDuplicateRequest if the caller already has a request queued or in
//     service;
//   - *RateLimitedError if the caller is ordinary and inside its cooldown;
//   - ErrStopped if the scheduler has been stopped;
//   - the PrivilegeFunc's error, wrapped, if privilege resolution failed.
//
// Submit never blocks on I/O of its own; ctx is only consulted by the
// privilege check.
func (s *Scheduler[T, R]) Submit(ctx context.Context, callerID string, payload T) (*futures.Future[R], error) {
	privileged := false
	if s.isPrivileged != nil {
		var err error
		if privileged, err = s.isPrivileged(ctx, callerID); err != nil {
			return nil, fmt.Errorf("resolving privilege for caller %q: %w", callerID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.metrics.rejected.WithLabelValues(reasonStopped).Inc()
		return nil, ErrStopped
	}

	if _, inFlight := s.states[callerID]; inFlight {
		s.metrics.rejected.WithLabelValues(reasonDuplicate).Inc()
		return nil, ErrDuplicateRequest
	}
	if s.queue.Contains(callerID) {
		// The queue index and the admission set disagree.  Err on the side
		// of single flight and treat the caller as already queued.
		s.logger.Error(nil, "queue holds caller without admission record", "caller", callerID)
		s.metrics.rejected.WithLabelValues(reasonDuplicate).Inc()
		return nil, ErrDuplicateRequest
	}

	// The cooldown token is consumed here, inside the critical section:
	// nothing past this point can fail, so consuming is equivalent to
	// recording the acceptance.
	if !privileged {
		if retryAfter, ok := s.gate.Acquire(callerID); !ok {
			s.metrics.rejected.WithLabelValues(reasonRateLimited).Inc()
			return nil, &RateLimitedError{RetryAfter: retryAfter}
		}
	}

	req := Request[T]{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		Privileged: privileged,
		EnqueuedAt: s.clock.Now(),
		Payload:    payload,
	}
	f := futures.New[R]()

	s.states[callerID] = stateQueued
	s.queue.Push(pq.Item[pending[T, R]]{
		CallerID:   callerID,
		Privileged: privileged,
		EnqueuedAt: req.EnqueuedAt,
		Payload:    pending[T, R]{req: req, future: f},
	})
	s.metrics.accepted.Inc()
	s.metrics.queueDepth.Set(float64(s.queue.Len()))

	s.ensureRunningLocked()
	s.wake()

	s.logger.V(1).Info("request admitted",
		"request", req.ID, "caller", callerID, "privileged", privileged)

	return f, nil
}

// EnsureRunning starts the dispatch loop if it is not already running.
// It is idempotent and safe to call concurrently; Submit calls it
// implicitly on every admission.  After Stop it does nothing.
func (s *Scheduler[T, R]) EnsureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.ensureRunningLocked()
}

func (s *Scheduler[T, R]) ensureRunningLocked() {
	if s.loopDone != nil {
		select {
		case <-s.loopDone:
			// Previous loop terminated; start a fresh one.
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.loopCancel = cancel
	s.loopDone = done

	go s.dispatchLoop(ctx, done)
}

// Stop shuts the scheduler down.  It cancels the dispatch loop, waits for
// it to exit (letting an in-flight callback finish), then discards every
// still-queued request without processing it.  Discarded requests fail
// their futures with futures.ErrDiscarded and are reported through
// Opts.Report when configured.  Stop is idempotent; Submit rejects with
// ErrStopped from the moment Stop is entered.
func (s *Scheduler[T, R]) Stop() {
	s.mu.Lock()
	wasStopped := s.stopped
	s.stopped = true
	cancel, done := s.loopCancel, s.loopDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if wasStopped {
		return
	}

	s.mu.Lock()
	discarded := s.queue.Clear()
	clear(s.states)
	s.metrics.queueDepth.Set(0)
	s.mu.Unlock()

	for _, it := range discarded {
		p := it.Payload
		if s.report != nil {
			s.reportFailure(p.req, futures.ErrDiscarded)
		}
		p.future.Discard()
	}

	s.gate.Close()
	s.logger.V(1).Info("scheduler stopped", "discarded", len(discarded))
}

// Status is a point-in-time snapshot of scheduler state.
type Status struct {
	// Waiting is the number of requests queued for dispatch.
	Waiting int
	// InService reports whether a request is currently being processed.
	InService bool
	// Running reports whether the dispatch loop is active.
	Running bool
}

// Status reports the current queue depth and loop state.
func (s *Scheduler[T, R]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Waiting: s.queue.Len()}
	for _, state := range s.states {
		if state == stateInService {
			st.InService = true
			break
		}
	}
	if s.loopDone != nil {
		select {
		case <-s.loopDone:
		default:
			st.Running = true
		}
	}
	return st
}

func (s *Scheduler[T, R]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
