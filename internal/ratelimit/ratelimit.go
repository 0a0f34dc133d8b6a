// Package ratelimit implements the two throttling primitives the fetcher
// composes: a bounded global concurrency semaphore and a per-host minimum
// interval with jitter.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Semaphore bounds the number of concurrently in-flight operations. It is
// the global HTTP concurrency cap (default 16) from the fetcher spec.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore returns a Semaphore with the given capacity. A non-positive
// capacity is treated as 1 to avoid a permanently blocked semaphore.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool. It must be called exactly once per
// successful Acquire, on every exit path.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

// HostThrottle enforces a minimum interval, plus uniform jitter, between
// successful completions for any given host. A single HostThrottle is
// shared process-wide, created once at startup and torn down at shutdown.
type HostThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	jitter   time.Duration
}

// NewHostThrottle builds a throttle enforcing interval between requests to
// the same host, with up to ±jitter of additional random delay.
func NewHostThrottle(interval, jitter time.Duration) *HostThrottle {
	return &HostThrottle{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		jitter:   jitter,
	}
}

// Wait blocks until it is this host's turn, or ctx is done. Two successful
// calls returning for the same host are always separated by at least
// interval minus the allowed negative jitter (P1).
func (h *HostThrottle) Wait(ctx context.Context, host string) error {
	limiter := h.limiterFor(host)
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if h.jitter <= 0 {
		return nil
	}
	delay := jitterDuration(h.jitter)
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *HostThrottle) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.interval), 1)
		h.limiters[host] = l
	}
	return l
}

// jitterDuration returns a uniformly distributed value in [-jitter, jitter].
func jitterDuration(jitter time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(2*jitter+1))) - jitter
}
