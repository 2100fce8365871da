package catalog

import (
	"context"
	"sync"
	"time"
)

// RateLimiter admits at most limit calls in any rolling window.
// Waiting callers hold the lock, so admission is FIFO.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Acquire blocks until one more request fits into the window.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evict(now)
	for len(r.stamps) >= r.limit {
		wait := r.stamps[0].Add(r.window).Sub(now)
		if wait > 0 {
			RateLimitWaits.Inc()
			RateLimitDelay.Observe(wait.Seconds())
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = r.now()
		r.evict(now)
	}
	r.stamps = append(r.stamps, now)
	return nil
}

// evict drops stamps that are no longer inside (now-window, now].
func (r *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.stamps) && !r.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
