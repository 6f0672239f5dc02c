package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRunNowUnknownLoop(t *testing.T) {
	s := New(nil, zerolog.Nop())
	if err := s.RunNow("nope"); err == nil {
		t.Error("RunNow(unknown): want error")
	}
}

func TestRunNowExecutesLoop(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	loop := &Loop{
		Name:     "status_sync",
		Interval: time.Hour, // never ticks during the test
		Fn: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		},
	}
	s := New([]*Loop{loop}, zerolog.Nop())

	if err := s.RunNow("status_sync"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 1
	})

	st := s.Status()
	if len(st) != 1 || st[0].Runs != 1 || st[0].Failures != 0 {
		t.Errorf("status = %+v, want one clean run", st)
	}
}

// A second trigger while a run is in flight is dropped, not queued.
func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	loop := &Loop{
		Name:     "pnl_backfill",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		},
	}
	s := New([]*Loop{loop}, zerolog.Nop())

	s.RunNow("pnl_backfill")
	<-started
	s.RunNow("pnl_backfill") // overlaps the blocked run

	close(release)
	waitFor(t, func() bool { return s.Status()[0].Runs == 1 })

	select {
	case <-started:
		t.Error("overlapping run executed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopErrorRecorded(t *testing.T) {
	loop := &Loop{
		Name:     "balance_sync",
		Interval: time.Hour,
		Fn:       func(ctx context.Context) error { return errors.New("venue unreachable") },
	}
	s := New([]*Loop{loop}, zerolog.Nop())

	s.RunNow("balance_sync")
	waitFor(t, func() bool { return s.Status()[0].Failures == 1 })

	st := s.Status()[0]
	if st.LastErr != "venue unreachable" {
		t.Errorf("last error = %q, want venue unreachable", st.LastErr)
	}
}

// A panicking loop records a failure and stays runnable.
func TestLoopPanicContained(t *testing.T) {
	calls := 0
	loop := &Loop{
		Name:     "position_audit",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			calls++
			if calls == 1 {
				panic("boom")
			}
			return nil
		},
	}
	s := New([]*Loop{loop}, zerolog.Nop())

	s.RunNow("position_audit")
	waitFor(t, func() bool { return s.Status()[0].Failures == 1 })

	s.RunNow("position_audit")
	waitFor(t, func() bool { return s.Status()[0].Runs >= 1 })
}

func TestStartStop(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	loop := &Loop{
		Name:     "status_sync",
		Interval: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		},
	}
	s := New([]*Loop{loop}, zerolog.Nop())
	s.Start()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	})
	s.Stop()
}
