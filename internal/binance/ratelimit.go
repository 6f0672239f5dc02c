package binance

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	pauseBase = 2 * time.Second
	pauseMax  = 60 * time.Second
)

// RateLimiter throttles outbound API calls to an aggregate requests-per-
// second ceiling and pauses all traffic after the venue reports a rate-limit
// violation. Each consecutive violation doubles the pause, capped at
// pauseMax, with jitter so concurrent loops don't resume in lockstep.
type RateLimiter struct {
	mu         sync.Mutex
	interval   time.Duration
	lastAt     time.Time
	pausedTill time.Time
	violations int
}

// NewRateLimiter creates a limiter allowing perSecond requests per second
// across all endpoints.
func NewRateLimiter(perSecond int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	return &RateLimiter{interval: time.Second / time.Duration(perSecond)}
}

// Wait blocks until the next request slot is available or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		wait := time.Duration(0)
		if now.Before(l.pausedTill) {
			wait = l.pausedTill.Sub(now)
		} else if since := now.Sub(l.lastAt); since < l.interval {
			wait = l.interval - since
		}
		if wait == 0 {
			l.lastAt = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Record notes a successful request, resetting the violation streak.
func (l *RateLimiter) Record() {
	l.mu.Lock()
	l.violations = 0
	l.mu.Unlock()
}

// Pause suspends all requests after a venue rate-limit error.
func (l *RateLimiter) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()

	delay := pauseBase * time.Duration(1<<uint(l.violations))
	if delay > pauseMax {
		delay = pauseMax
	}
	delay += time.Duration(rand.Int63n(int64(delay) / 4))
	l.violations++

	till := time.Now().Add(delay)
	if till.After(l.pausedTill) {
		l.pausedTill = till
	}
}

// PausedUntil reports the end of the current pause window, zero when open.
func (l *RateLimiter) PausedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Now().Before(l.pausedTill) {
		return l.pausedTill
	}
	return time.Time{}
}
