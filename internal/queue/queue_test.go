package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/ratelimit"
)

func task(id, submitter string) council.Task {
	return council.Task{
		SubmissionID: council.SubmissionID(id),
		Letter:       council.Letter{Symbol: "NEO", Thesis: "up only", SubmitterID: submitter},
		EnqueuedAt:   time.Now(),
	}
}

func TestFIFOOrder(t *testing.T) {
	q := New(0, nil, nil)
	const n = 20
	for i := 0; i < n; i++ {
		if _, err := q.Enqueue(task(fmt.Sprintf("s-%d", i), "alice")); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Drain(ctx, func(_ context.Context, tk council.Task) {
			got = append(got, string(tk.SubmissionID))
			if len(got) == n {
				cancel()
			}
		})
	}()
	<-done

	for i, id := range got {
		if want := fmt.Sprintf("s-%d", i); id != want {
			t.Fatalf("position %d: got %s, want %s", i, id, want)
		}
	}
}

func TestQueueFull(t *testing.T) {
	q := New(2, nil, nil)
	if _, err := q.Enqueue(task("a", "alice")); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if _, err := q.Enqueue(task("b", "alice")); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	_, err := q.Enqueue(task("c", "alice"))
	if !errors.Is(err, council.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if q.Depth() != 2 {
		t.Fatalf("depth = %d, want 2 (rejected enqueue must not change state)", q.Depth())
	}
}

func TestRateLimitedAtAdmission(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	q := New(0, limiter, nil)

	var rejected int
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(task(fmt.Sprintf("s-%d", i), "alice")); errors.Is(err, council.ErrRateLimited) {
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("rejected = %d, want exactly 1", rejected)
	}
	if q.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", q.Depth())
	}
}

func TestSingleDrainLoop(t *testing.T) {
	q := New(0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		q.Drain(ctx, func(context.Context, council.Task) {})
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	if err := q.Drain(ctx, func(context.Context, council.Task) {}); !errors.Is(err, ErrDrainActive) {
		t.Fatalf("second drain err = %v, want ErrDrainActive", err)
	}
}

func TestNoOverlappingRuns(t *testing.T) {
	q := New(0, nil, nil)
	for i := 0; i < 10; i++ {
		q.Enqueue(task(fmt.Sprintf("s-%d", i), "alice"))
	}

	var mu sync.Mutex
	inFlight, maxInFlight, seen := 0, 0, 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Drain(ctx, func(context.Context, council.Task) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			seen++
			if seen == 10 {
				cancel()
			}
			mu.Unlock()
		})
	}()
	<-done

	if maxInFlight != 1 {
		t.Fatalf("max in-flight runs = %d, want 1", maxInFlight)
	}
}

func TestDrainWakesOnLateEnqueue(t *testing.T) {
	q := New(0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan council.SubmissionID, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Drain(ctx, func(_ context.Context, tk council.Task) {
			got <- tk.SubmissionID
		})
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(task("late", "alice"))

	select {
	case id := <-got:
		if id != "late" {
			t.Fatalf("got %s, want late", id)
		}
	case <-time.After(time.Second):
		t.Fatal("drain loop never picked up the late task")
	}
	cancel()
	<-done
}
