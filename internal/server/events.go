package server

import (
	"context"
	"sync"
	"time"

	"github.com/maruel/schemadb/internal/vfs"
)

// eventHub hands each change batch to every long-poll waiting at the time it
// is published.
type eventHub struct {
	maxWait time.Duration

	mu      sync.Mutex
	waiters map[chan []vfs.FileChangeEvent]struct{}
}

func newEventHub(maxWait time.Duration) *eventHub {
	return &eventHub{maxWait: maxWait, waiters: make(map[chan []vfs.FileChangeEvent]struct{})}
}

func (h *eventHub) publish(batch []vfs.FileChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.waiters {
		ch <- batch
		delete(h.waiters, ch)
	}
}

// wait returns the next batch, or nil when ctx is done or d (capped to
// maxWait; 0 selects maxWait) elapses first.
func (h *eventHub) wait(ctx context.Context, d time.Duration) []vfs.FileChangeEvent {
	if d <= 0 || d > h.maxWait {
		d = h.maxWait
	}
	ch := make(chan []vfs.FileChangeEvent, 1)
	h.mu.Lock()
	h.waiters[ch] = struct{}{}
	h.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case b := <-ch:
		return b
	case <-ctx.Done():
	case <-t.C:
	}
	h.mu.Lock()
	delete(h.waiters, ch)
	h.mu.Unlock()
	// A batch may have been published between the timeout and the removal.
	select {
	case b := <-ch:
		return b
	default:
		return nil
	}
}
