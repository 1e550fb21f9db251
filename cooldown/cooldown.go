// Package cooldown enforces a minimum interval between accepted requests on
// a per-caller basis.  Each caller gets a one-token bucket that refills at
// one token per interval, so the first request is always admitted and the
// next one only after the interval has fully elapsed.
//
// Caller entries live in a TTL cache sized by the interval itself: an entry
// that has been idle longer than the interval holds a full token anyway, so
// evicting it is indistinguishable from keeping it.
package cooldown

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Gate tracks per-caller acceptance times and answers whether a new request
// may be accepted yet.
type Gate struct {
	interval time.Duration
	clock    clock.PassiveClock
	janitor  bool

	mu      sync.Mutex
	entries *ttlcache.Cache[string, *rate.Limiter]
}

// New creates a gate with the given minimum inter-request interval.
// A nil clk falls back to the real clock.  Panics if interval is not
// positive.
func New(interval time.Duration, clk clock.PassiveClock) *Gate {
	if interval <= 0 {
		panic("cooldown: interval must be positive")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	g := &Gate{
		interval: interval,
		clock:    clk,
		entries: ttlcache.New[string, *rate.Limiter](
			ttlcache.WithTTL[string, *rate.Limiter](interval),
		),
	}

	// The cache janitor expires entries on wall time, but the limiter math
	// runs on clk.  When the two timelines diverge (an injected clock), a
	// wall-aged eviction would hand a still-cooling caller a fresh token,
	// so the janitor only runs when clk is the wall clock.
	if _, real := clk.(clock.RealClock); real {
		g.janitor = true
		go g.entries.Start()
	}

	return g
}

// Acquire consumes the caller's token if the cooldown has elapsed.
// When it has not, ok is false, retryAfter holds the remaining wait, and
// nothing is consumed, so a rejected attempt does not push the next
// eligible time further out.
func (g *Gate) Acquire(callerID string) (retryAfter time.Duration, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()

	var limiter *rate.Limiter
	if item := g.entries.Get(callerID); item != nil {
		limiter = item.Value()
	} else {
		limiter = rate.NewLimiter(rate.Every(g.interval), 1)
		g.entries.Set(callerID, limiter, ttlcache.DefaultTTL)
	}

	r := limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// Interval returns the configured minimum inter-request interval.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Close stops the cache janitor.  The gate must not be used afterwards.
func (g *Gate) Close() {
	if g.janitor {
		g.entries.Stop()
	}
}
