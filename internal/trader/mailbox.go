package trader

import (
	"context"
	"sync"
)

// Mailbox serializes work per symbol: all mutating operations for one
// coin_symbol run on that symbol's single goroutine, in submission order.
// Operations on different symbols proceed concurrently.
type Mailbox struct {
	mu     sync.Mutex
	lanes  map[string]chan job
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// NewMailbox creates an empty mailbox. Lanes are started lazily per symbol.
func NewMailbox() *Mailbox {
	return &Mailbox{lanes: make(map[string]chan job)}
}

// Do runs fn on the symbol's lane and waits for it to finish. The context
// cancels the wait, not the running job: a job that already started runs to
// completion so in-flight venue work is never abandoned mid-write.
func (m *Mailbox) Do(ctx context.Context, symbol string, fn func(context.Context) error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return context.Canceled
	}
	lane, ok := m.lanes[symbol]
	if !ok {
		lane = make(chan job, 64)
		m.lanes[symbol] = lane
		m.wg.Add(1)
		go m.run(lane)
	}
	m.mu.Unlock()

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case lane <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailbox) run(lane chan job) {
	defer m.wg.Done()
	for j := range lane {
		if j.ctx.Err() != nil {
			// Caller gave up before the job started; skip it.
			j.done <- j.ctx.Err()
			continue
		}
		j.done <- j.fn(j.ctx)
	}
}

// Close stops accepting work and waits for queued jobs to drain.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, lane := range m.lanes {
		close(lane)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
