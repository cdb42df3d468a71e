package vfs

import (
	"sync"
	"time"
)

// DefaultDebounce is the default quiet period of the change queue.
const DefaultDebounce = 25 * time.Millisecond

// changeQueue coalesces change events: every push restarts the timer, and
// once the queue stays quiet for the debounce window, every pending event is
// delivered as one batch, in arrival order.
type changeQueue struct {
	delay   time.Duration
	deliver func([]FileChangeEvent)

	// deliverMu is held from take to the end of deliver so batches reach
	// listeners in the order they were taken.
	deliverMu sync.Mutex

	mu      sync.Mutex
	pending []FileChangeEvent
	timer   *time.Timer
	gen     uint64 // Incremented on every push; a stale timer fire is ignored.
}

func newChangeQueue(delay time.Duration, deliver func([]FileChangeEvent)) *changeQueue {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &changeQueue{delay: delay, deliver: deliver}
}

func (q *changeQueue) push(ev FileChangeEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, ev)
	q.gen++
	gen := q.gen
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.delay, func() { q.fire(gen) })
}

func (q *changeQueue) fire(gen uint64) {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	batch := q.take()
	q.mu.Unlock()
	if len(batch) != 0 {
		q.deliver(batch)
	}
}

// flush delivers pending events immediately.
func (q *changeQueue) flush() {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.gen++
	batch := q.take()
	q.mu.Unlock()
	if len(batch) != 0 {
		q.deliver(batch)
	}
}

func (q *changeQueue) take() []FileChangeEvent {
	batch := q.pending
	q.pending = nil
	q.timer = nil
	return batch
}
