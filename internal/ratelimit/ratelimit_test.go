package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("alice") {
			t.Fatalf("admission %d rejected, want allowed", i+1)
		}
	}
	if l.Allow("alice") {
		t.Fatal("admission 4 allowed, want rejected")
	}
	// A different identity has its own window.
	if !l.Allow("bob") {
		t.Fatal("other identity rejected, want allowed")
	}
}

func TestWindowExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("alice") || !l.Allow("alice") {
		t.Fatal("initial admissions rejected")
	}
	if l.Allow("alice") {
		t.Fatal("over-limit admission allowed")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("alice") {
		t.Fatal("admission after window expiry rejected")
	}
}

func TestConcurrentAllowNoDoubleCount(t *testing.T) {
	const limit = 10
	const attempts = 100

	l := New(limit, time.Minute)
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("alice") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("allowed = %d, want exactly %d", allowed, limit)
	}
}

func TestZeroLimitDisables(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("alice") {
			t.Fatal("disabled limiter rejected an admission")
		}
	}
}
