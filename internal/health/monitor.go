package health

import (
	"sync/atomic"
	"time"
)

// Monitor keeps process-wide pipeline counters. Updates are fire-and-forget
// and never block or fail the pipeline. Constructed once at process start
// and injected where needed.
type Monitor struct {
	queueDepth        int64
	evaluatorFailures uint64
	pipelineFailures  uint64
	runsFinalized     uint64
	lastFinalized     int64 // unix nanos, 0 until the first finalized run
	startTime         time.Time
}

// Snapshot is an immutable read of the monitor state.
type Snapshot struct {
	QueueDepth        int       `json:"queue_depth"`
	EvaluatorFailures uint64    `json:"evaluator_failures"`
	PipelineFailures  uint64    `json:"pipeline_failures"`
	RunsFinalized     uint64    `json:"runs_finalized"`
	LastFinalized     time.Time `json:"last_finalized,omitzero"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
}

func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

func (m *Monitor) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	atomic.StoreInt64(&m.queueDepth, int64(depth))
}

func (m *Monitor) EvaluatorFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.evaluatorFailures, 1)
}

func (m *Monitor) PipelineFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.pipelineFailures, 1)
}

func (m *Monitor) RunFinalized(at time.Time) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.runsFinalized, 1)
	atomic.StoreInt64(&m.lastFinalized, at.UnixNano())
}

func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		QueueDepth:        int(atomic.LoadInt64(&m.queueDepth)),
		EvaluatorFailures: atomic.LoadUint64(&m.evaluatorFailures),
		PipelineFailures:  atomic.LoadUint64(&m.pipelineFailures),
		RunsFinalized:     atomic.LoadUint64(&m.runsFinalized),
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
	}
	if ns := atomic.LoadInt64(&m.lastFinalized); ns != 0 {
		s.LastFinalized = time.Unix(0, ns)
	}
	return s
}
