package council

import "errors"

// Admission-time rejections. Non-fatal to the system; the caller retries later.
var (
	ErrRateLimited = errors.New("rate limit exceeded for submitter")
	ErrQueueFull   = errors.New("submission queue is full")
)

// ErrNoEvaluatorResponse indicates every evaluator in a run failed, so no
// meaningful average exists. Fatal to the run.
var ErrNoEvaluatorResponse = errors.New("no evaluator produced a report")

// ErrEvaluatorTimeout marks a single evaluator that exceeded the per-run
// budget. Absorbed by the missing-report policy, never fatal on its own.
var ErrEvaluatorTimeout = errors.New("evaluator timed out")

// PersistenceError wraps a repository failure. Fatal to the run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persistence " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// DisseminationError wraps a publish failure. Recorded on the Decision,
// never reverts completion.
type DisseminationError struct {
	Err error
}

func (e *DisseminationError) Error() string { return "dissemination: " + e.Err.Error() }
func (e *DisseminationError) Unwrap() error { return e.Err }
