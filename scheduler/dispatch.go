package scheduler

import (
	"context"
	"fmt"
	"time"
)

// invariantBackoff bounds how fast the loop spins when it detects internal
// state corruption.
const invariantBackoff = 250 * time.Millisecond

// dispatchLoop is the single consumer of the queue and the only goroutine
// that invokes the processing callback.  It runs until ctx is canceled,
// checking for cancellation at its two suspension points: the empty-queue
// wait and the post-callback return to the top of the loop.  A callback
// that is already executing when Stop is called always runs to completion.
func (s *Scheduler[T, R]) dispatchLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.logger.V(1).Info("dispatch loop started")
	defer s.logger.V(1).Info("dispatch loop exited")

	for {
		p, ok := s.next(ctx)
		if !ok {
			return
		}
		s.dispatch(ctx, p)
	}
}

// next blocks until a request is available or ctx is canceled.  The popped
// caller is transitioned queued -> in service before the scheduler mutex is
// released, so a concurrent Submit from the same caller still sees it in
// flight.
func (s *Scheduler[T, R]) next(ctx context.Context) (pending[T, R], bool) {
	for {
		if ctx.Err() != nil {
			return pending[T, R]{}, false
		}

		s.mu.Lock()
		it, ok := s.queue.PopMin()
		if ok {
			prev := s.states[it.CallerID]
			s.states[it.CallerID] = stateInService
			s.metrics.queueDepth.Set(float64(s.queue.Len()))
			s.mu.Unlock()

			if prev != stateQueued {
				// Queue and admission set disagree.  The request itself is
				// still serviceable, but slow down rather than risk a tight
				// spin over corrupted state.
				s.logger.Error(nil, "admission record out of sync with queue",
					"caller", it.CallerID, "state", int(prev))
				s.backoff(ctx)
			}
			return it.Payload, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return pending[T, R]{}, false
		case <-s.notify:
		}
	}
}

// dispatch runs the callback for a single request and settles its future.
// The caller's admission record is released unconditionally (invoke and
// reportFailure recover panics, so control always reaches the release)
// and before the failure report and future settle, so a submitter reacting
// to either is immediately admissible again.  Otherwise a failed request
// would lock its caller out forever.
func (s *Scheduler[T, R]) dispatch(ctx context.Context, p pending[T, R]) {
	res, err := s.invoke(ctx, p.req)

	// The caller may legally resubmit the moment it is released; nothing
	// below may touch its admission record again, or it would destroy the
	// resubmitted request's fresh record.
	s.release(p.req.CallerID)

	if err != nil {
		s.logger.Error(err, "request processing failed",
			"request", p.req.ID, "caller", p.req.CallerID)
		s.metrics.processed.WithLabelValues(outcomeError).Inc()
		// Report before settling the future, so anyone woken by the
		// future already sees the failure reported.
		if s.report != nil {
			s.reportFailure(p.req, err)
		}
		p.future.Fail(err)
		return
	}

	s.metrics.processed.WithLabelValues(outcomeOK).Inc()
	p.future.Complete(res)
}

// invoke runs the processing callback, converting a panic into an error so
// a misbehaving callback cannot take the loop down.  The callback's context
// deliberately does not inherit the loop's cancellation: Stop waits for the
// in-flight callback instead of interrupting it.
func (s *Scheduler[T, R]) invoke(ctx context.Context, req Request[T]) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing callback panicked: %v", r)
		}
	}()
	return s.run(context.WithoutCancel(ctx), req)
}

// reportFailure shields the loop from a panicking reporter.
func (s *Scheduler[T, R]) reportFailure(req Request[T], failure error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Errorf("%v", r), "failure reporter panicked",
				"request", req.ID)
		}
	}()
	s.report(req, failure)
}

func (s *Scheduler[T, R]) release(callerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, callerID)
}

func (s *Scheduler[T, R]) backoff(ctx context.Context) {
	t := s.clock.NewTimer(invariantBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C():
	}
}
