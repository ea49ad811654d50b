package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

// InitFunc performs an evaluator's expensive one-time setup (tool wiring,
// connections) and returns the ready evaluator.
type InitFunc func(ctx context.Context) (council.Evaluator, error)

// initAttempt is one in-flight initialization. All callers that arrive while
// it runs wait on done and then share its outcome.
type initAttempt struct {
	done chan struct{}
	eval council.Evaluator
	err  error
}

// Runner guards one evaluator's initialization state: setup runs at most
// once even under concurrent first use, and once ready the evaluator is
// shared by concurrent invocations. A failed attempt is handed to its
// waiters but does not poison the runner; the next caller retries.
type Runner struct {
	id   string
	init InitFunc

	mu       sync.Mutex
	eval     council.Evaluator
	inflight *initAttempt
}

func New(id string, init InitFunc) *Runner {
	return &Runner{id: id, init: init}
}

func (r *Runner) ID() string { return r.id }

func (r *Runner) evaluator(ctx context.Context) (council.Evaluator, error) {
	r.mu.Lock()
	if r.eval != nil {
		ev := r.eval
		r.mu.Unlock()
		return ev, nil
	}
	if a := r.inflight; a != nil {
		r.mu.Unlock()
		select {
		case <-a.done:
			return a.eval, a.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a := &initAttempt{done: make(chan struct{})}
	r.inflight = a
	r.mu.Unlock()

	ev, err := r.init(ctx)

	r.mu.Lock()
	if err == nil {
		r.eval = ev
	} else {
		log.Printf("runner init failed evaluator=%s err=%v", r.id, err)
	}
	r.inflight = nil
	r.mu.Unlock()

	a.eval, a.err = ev, err
	close(a.done)
	return ev, err
}

// Invoke runs one mission against the shared evaluator with a hard deadline.
// On timeout the caller gets a failed report immediately; the underlying
// call may keep running but its result is discarded.
func (r *Runner) Invoke(ctx context.Context, m council.Mission, timeout time.Duration) council.EvaluatorReport {
	ev, err := r.evaluator(ctx)
	if err != nil {
		return council.FailedReport(r.id, "init: "+err.Error())
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan council.EvaluatorReport, 1)
	go func() {
		rep, err := ev.Produce(cctx, m)
		if err != nil {
			rep = council.FailedReport(r.id, err.Error())
		}
		rep.ElapsedMS = time.Since(start).Milliseconds()
		ch <- rep
	}()

	select {
	case rep := <-ch:
		return rep
	case <-cctx.Done():
		rep := council.FailedReport(r.id, council.ErrEvaluatorTimeout.Error())
		rep.ElapsedMS = time.Since(start).Milliseconds()
		return rep
	}
}
