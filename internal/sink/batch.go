package sink

import (
	"sync"
	"time"
)

// PostFunc receives an accumulated batch of backend payloads.
type PostFunc func(batch []map[string]any)

// Batcher accumulates payloads and posts them when either the size
// threshold is reached or the interval timer fires after the first add.
type Batcher struct {
	mu      sync.Mutex
	batch   []map[string]any
	max     int
	timeout time.Duration
	timer   *time.Timer
	started bool
	post    PostFunc
}

// NewBatcher creates a batcher posting at most max payloads per batch,
// or whatever accumulated once timeout elapses after the first add.
func NewBatcher(max int, timeout time.Duration, post PostFunc) *Batcher {
	return &Batcher{
		max:     max,
		timeout: timeout,
		post:    post,
	}
}

// Add queues a payload, triggering a post when the batch is full.
func (b *Batcher) Add(payload map[string]any) {
	b.mu.Lock()
	b.batch = append(b.batch, payload)

	if len(b.batch) >= b.max {
		batch := b.batch
		b.batch = nil
		b.stopTimerLocked()
		b.mu.Unlock()
		b.post(batch)
		return
	}

	if !b.started {
		b.timer = time.AfterFunc(b.timeout, b.Flush)
		b.started = true
	}
	b.mu.Unlock()
}

// Flush posts whatever is accumulated, if anything.
func (b *Batcher) Flush() {
	b.mu.Lock()
	batch := b.batch
	b.batch = nil
	b.stopTimerLocked()
	b.mu.Unlock()

	if len(batch) > 0 {
		b.post(batch)
	}
}

// Close stops the timer and posts the remainder.
func (b *Batcher) Close() {
	b.Flush()
}

func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.started = false
}
