package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle bounds how often an event keyed by string may be emitted. The
// scheduler uses it so a job that fails on every tick does not flood the log;
// suppressed occurrences are still counted in history and on the event bus.
type Throttle struct {
	limit rate.Limit
	burst int

	mu   sync.Mutex
	lims map[string]*rate.Limiter
}

// NewThrottle allows one event per key every `every`, with the given burst.
func NewThrottle(every time.Duration, burst int) *Throttle {
	if every <= 0 {
		every = time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limit: rate.Every(every),
		burst: burst,
		lims:  map[string]*rate.Limiter{},
	}
}

// Allow reports whether an event for key may be emitted now.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	lim, ok := t.lims[key]
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.lims[key] = lim
	}
	t.mu.Unlock()
	return lim.Allow()
}

// Forget drops the limiter state for key (e.g. after the job is removed).
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	delete(t.lims, key)
	t.mu.Unlock()
}
