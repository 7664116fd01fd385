package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/diegod088/bot-bens11-sub000/internal/retry"
)

// RateLimiter paces requests to the Telegram API and holds every caller
// back while a flood-wait is active.
type RateLimiter struct {
	limiter *rate.Limiter

	// pause after FLOOD_WAIT, shared by all callers of the session
	floodWaitUntil time.Time
	mu             sync.Mutex

	now   func() time.Time
	sleep retry.Sleeper
}

// NewRateLimiter creates a rate limiter for Telegram.
// rps <= 0 disables pacing.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
		sleep:   retry.Sleep,
	}
}

// Wait blocks until the next request is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if d := r.FloodWaitRemaining(); d > 0 {
		if err := r.sleep(ctx, d); err != nil {
			return err
		}
	}
	return r.limiter.Wait(ctx)
}

// SetFloodWait pauses all callers for d. A shorter pause never cuts an
// active longer one.
func (r *RateLimiter) SetFloodWait(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until := r.now().Add(d)
	if until.After(r.floodWaitUntil) {
		r.floodWaitUntil = until
	}
}

// FloodWaitRemaining returns how long the current flood pause lasts.
func (r *RateLimiter) FloodWaitRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.floodWaitUntil.Sub(r.now())
}
