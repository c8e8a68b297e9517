// Package ratelimit provides a fixed-window rate limiter, single-entity and
// keyed. The uplink uses a single limiter to cap sends at one per second;
// the peer ingestion listener uses a keyed limiter per remote address.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window rate limiter for a single entity.
type Limiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	rate        int
	window      time.Duration
}

// New creates a Limiter that allows rate events per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		rate:        rate,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow returns true if the event is within the rate limit.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.windowStart) > l.window {
		l.count = 0
		l.windowStart = now
	}
	l.count++
	return l.count <= l.rate
}

// Keyed tracks an independent fixed window per key. Stale keys are swept
// opportunistically so a churn of remote addresses cannot grow the map
// without bound.
type Keyed struct {
	mu        sync.Mutex
	entries   map[string]*window
	rate      int
	window    time.Duration
	lastSweep time.Time
}

type window struct {
	count int
	start time.Time
}

// NewKeyed creates a Keyed limiter allowing rate events per window per key.
func NewKeyed(rate int, win time.Duration) *Keyed {
	return &Keyed{
		entries:   make(map[string]*window),
		rate:      rate,
		window:    win,
		lastSweep: time.Now(),
	}
}

// Allow returns true if the event for key is within that key's rate limit.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	if now.Sub(k.lastSweep) > 10*k.window {
		for id, w := range k.entries {
			if now.Sub(w.start) > k.window {
				delete(k.entries, id)
			}
		}
		k.lastSweep = now
	}

	w, ok := k.entries[key]
	if !ok || now.Sub(w.start) > k.window {
		w = &window{start: now}
		k.entries[key] = w
	}
	w.count++
	return w.count <= k.rate
}
