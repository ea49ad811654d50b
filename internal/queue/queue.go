package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/health"
	"github.com/bryanwahyu/alphacouncil/internal/ratelimit"
)

// RunFunc handles one dequeued task. The drain loop runs exactly one RunFunc
// at a time to completion before popping the next task.
type RunFunc func(ctx context.Context, task council.Task)

// Queue is a FIFO buffer between producers and a single drain loop.
// Enqueue is safe for concurrent producers; admission consults the rate
// limiter before any state change.
type Queue struct {
	mu       sync.Mutex
	items    []council.Task
	capacity int

	limiter *ratelimit.Limiter
	monitor *health.Monitor

	wake     chan struct{}
	draining int32
}

// New builds a queue. capacity <= 0 means unbounded.
func New(capacity int, limiter *ratelimit.Limiter, monitor *health.Monitor) *Queue {
	return &Queue{
		capacity: capacity,
		limiter:  limiter,
		monitor:  monitor,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends a task in FIFO order. It fails with council.ErrRateLimited
// or council.ErrQueueFull without any state change; it never blocks and
// never silently drops.
func (q *Queue) Enqueue(task council.Task) (council.SubmissionID, error) {
	q.mu.Lock()
	if q.limiter != nil && !q.limiter.Allow(task.Letter.SubmitterID) {
		q.mu.Unlock()
		return "", council.ErrRateLimited
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return "", council.ErrQueueFull
	}
	q.items = append(q.items, task)
	depth := len(q.items)
	q.mu.Unlock()

	q.monitor.SetQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	log.Printf("queue enqueue submission=%s submitter=%s depth=%d",
		task.SubmissionID, task.Letter.SubmitterID, depth)
	return task.SubmissionID, nil
}

// Depth returns the number of queued tasks.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (council.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return council.Task{}, false
	}
	task := q.items[0]
	q.items = q.items[1:]
	q.monitor.SetQueueDepth(len(q.items))
	return task, true
}

// ErrDrainActive guards the single-consumer contract: only one drain loop
// may run against a queue at a time.
var ErrDrainActive = errors.New("drain loop already active")

// Drain consumes tasks in enqueue order until ctx is cancelled, handing each
// to run sequentially so at most one pipeline executes at a time.
func (q *Queue) Drain(ctx context.Context, run RunFunc) error {
	if !atomic.CompareAndSwapInt32(&q.draining, 0, 1) {
		return ErrDrainActive
	}
	defer atomic.StoreInt32(&q.draining, 0)

	log.Printf("queue drain loop started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("queue drain loop stopped")
			return ctx.Err()
		default:
		}

		task, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				log.Printf("queue drain loop stopped")
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}
		run(ctx, task)
	}
}
