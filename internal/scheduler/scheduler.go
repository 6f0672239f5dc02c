// Package scheduler runs the periodic reconciliation loops: status sync,
// PnL backfill, orphan cleanup, balance sync, and the active-futures audit.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loop is one periodic reconciliation task.
type Loop struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	lastErr  string
	runs     int64
	failures int64
}

// LoopStatus is the externally visible state of a loop.
type LoopStatus struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	Running  bool      `json:"running"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	Runs     int64     `json:"runs"`
	Failures int64     `json:"failures"`
}

// Scheduler drives a set of loops, one worker each. Loop panics and errors
// are contained: a failing loop logs and waits for its next tick.
type Scheduler struct {
	loops  []*Loop
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler over the given loops.
func New(loops []*Loop, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		loops:  loops,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches one worker per loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})

	for _, loop := range s.loops {
		s.wg.Add(1)
		go s.runLoop(loop)
	}
	s.logger.Info().Int("loops", len(s.loops)).Msg("scheduler started")
}

// Stop halts all workers and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runLoop(loop *Loop) {
	defer s.wg.Done()

	ticker := time.NewTicker(loop.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.execute(loop)
		}
	}
}

// execute runs one iteration under the single-flight guard.
func (s *Scheduler) execute(loop *Loop) {
	loop.mu.Lock()
	if loop.running {
		loop.mu.Unlock()
		s.logger.Warn().Str("loop", loop.Name).Msg("previous run still in flight, skipping")
		return
	}
	loop.running = true
	loop.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("loop", loop.Name).Interface("panic", r).Msg("loop panicked")
			loop.mu.Lock()
			loop.failures++
			loop.lastErr = fmt.Sprintf("panic: %v", r)
			loop.running = false
			loop.mu.Unlock()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), loop.Interval)
	err := loop.Fn(ctx)
	cancel()

	loop.mu.Lock()
	loop.running = false
	loop.lastRun = time.Now()
	loop.runs++
	if err != nil {
		loop.failures++
		loop.lastErr = err.Error()
	} else {
		loop.lastErr = ""
	}
	loop.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("loop", loop.Name).Msg("loop run failed")
	} else {
		s.logger.Debug().Str("loop", loop.Name).Msg("loop run completed")
	}
}

// RunNow triggers one loop by name, respecting the single-flight guard.
func (s *Scheduler) RunNow(name string) error {
	for _, loop := range s.loops {
		if loop.Name == name {
			go s.execute(loop)
			return nil
		}
	}
	return fmt.Errorf("unknown loop %q", name)
}

// Status snapshots every loop.
func (s *Scheduler) Status() []LoopStatus {
	out := make([]LoopStatus, 0, len(s.loops))
	for _, loop := range s.loops {
		loop.mu.Lock()
		out = append(out, LoopStatus{
			Name:     loop.Name,
			Interval: loop.Interval.String(),
			Running:  loop.running,
			LastRun:  loop.lastRun,
			LastErr:  loop.lastErr,
			Runs:     loop.runs,
			Failures: loop.failures,
		})
		loop.mu.Unlock()
	}
	return out
}
