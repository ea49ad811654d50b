package ratelimit

import (
	"sync"
	"time"
)

// window keeps the admission timestamps for one submitter inside the
// sliding span.
type window struct {
	mu     sync.Mutex
	events []time.Time
}

// allow prunes expired events and does the check-and-append atomically so
// concurrent admission attempts never double-count.
func (w *window) allow(now time.Time, span time.Duration, limit int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	keep := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.events = keep

	if len(w.events) >= limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// Limiter manages sliding-window admission per submitter identity.
// State is in-memory only; a restart resets it.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	limit   int
	span    time.Duration
	now     func() time.Time
}

func New(limit int, span time.Duration) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
		now:     time.Now,
	}

	// Drop idle windows so the map does not grow with one-off submitters.
	go l.cleanup()

	return l
}

func (l *Limiter) getWindow(key string) *window {
	l.mu.RLock()
	w, exists := l.windows[key]
	l.mu.RUnlock()

	if exists {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if w, exists := l.windows[key]; exists {
		return w
	}

	w = &window{}
	l.windows[key] = w
	return w
}

// Allow reports whether one more admission for key fits in the current
// window, consuming a slot when it does. A limit <= 0 disables limiting.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	return l.getWindow(key).allow(l.now(), l.span, l.limit)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := l.now().Add(-2 * l.span)
		l.mu.Lock()
		for key, w := range l.windows {
			w.mu.Lock()
			idle := len(w.events) == 0 || w.events[len(w.events)-1].Before(cutoff)
			w.mu.Unlock()
			if idle {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}
