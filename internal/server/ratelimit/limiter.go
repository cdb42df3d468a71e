// Implements a per-client token bucket rate limiter.

// Package ratelimit limits write requests per client with token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // Requests per window.
	Remaining  int           // Requests left before throttling.
	ResetAt    time.Time     // When the bucket will be full again.
	RetryAfter time.Duration // Wait before retrying; 0 if allowed.
}

// Limiter holds one token bucket per key.
type Limiter struct {
	rate   rate.Limit
	burst  int
	window time.Duration
	idle   time.Duration // Buckets unused this long and full are dropped.

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows requests per window for each key, with burst capacity.
// It returns nil when requests is 0; a nil Limiter allows everything.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	if requests <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
		window:  window,
		idle:    max(window, 10*time.Minute),
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow consumes one token of key's bucket if available.
func (l *Limiter) Allow(key string) Result {
	if l == nil {
		return Result{Allowed: true}
	}
	now := time.Now()
	l.mu.Lock()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := Result{Limit: int(math.Round(float64(l.rate) * l.window.Seconds()))}
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); r.OK() && delay == 0 {
		res.Allowed = true
	} else {
		r.CancelAt(now)
		res.RetryAfter = max(delay.Round(time.Second), time.Second)
	}
	tokens := b.limiter.TokensAt(now)
	res.Remaining = max(int(tokens), 0)
	missing := float64(l.burst) - tokens
	res.ResetAt = now.Add(time.Duration(missing / float64(l.rate) * float64(time.Second)))
	return res
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	t := time.NewTicker(l.idle)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			l.cleanup(now)
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets that are idle and full.
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}
