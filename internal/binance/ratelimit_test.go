package binance

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSpacesRequests(t *testing.T) {
	l := NewRateLimiter(100) // 10ms interval
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("5 requests took %v, want at least 40ms of spacing", elapsed)
	}
}

func TestRateLimiterPause(t *testing.T) {
	l := NewRateLimiter(1000)

	if !l.PausedUntil().IsZero() {
		t.Error("fresh limiter should not be paused")
	}

	l.Pause()
	till := l.PausedUntil()
	if till.IsZero() {
		t.Fatal("limiter should be paused after Pause")
	}
	// First violation pauses 2s plus up to 25% jitter.
	d := time.Until(till)
	if d < 1500*time.Millisecond || d > 3*time.Second {
		t.Errorf("first pause = %v, want ~2s..2.5s", d)
	}
}

func TestRateLimiterPauseDoubles(t *testing.T) {
	l := NewRateLimiter(1000)
	l.Pause()
	first := time.Until(l.PausedUntil())
	l.Pause()
	second := time.Until(l.PausedUntil())
	if second <= first {
		t.Errorf("second pause %v not longer than first %v", second, first)
	}
}

func TestRateLimiterRecordResetsViolations(t *testing.T) {
	l := NewRateLimiter(1000)
	l.Pause()
	l.Pause()
	l.Record()

	l.mu.Lock()
	violations := l.violations
	l.mu.Unlock()
	if violations != 0 {
		t.Errorf("violations = %d after Record, want 0", violations)
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	l := NewRateLimiter(1000)
	l.Pause() // at least 2s

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait during pause with expiring context: want error")
	}
}
