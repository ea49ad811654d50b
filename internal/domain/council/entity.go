package council

import (
	"time"
)

// SubmissionID tipe untuk satu submission
type SubmissionID string

// Status enum for the durable submission projection
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Verdict enum
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictNotPass Verdict = "not_pass"
)

// Letter is the immutable analysis request a submitter hands in.
type Letter struct {
	Symbol      string         `json:"symbol"`
	Thesis      string         `json:"thesis"`
	SubmitterID string         `json:"submitter_id"`
	Source      string         `json:"source,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task wraps a Letter for the queue. Owned by the queue until dequeued,
// then by the pipeline for exactly one run.
type Task struct {
	SubmissionID SubmissionID `json:"submission_id"`
	Letter       Letter       `json:"letter"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
}

// Mission is the per-evaluator directive derived from a Letter during
// planning. Ephemeral; lives only within one pipeline run.
type Mission struct {
	EvaluatorID string `json:"evaluator_id"`
	Symbol      string `json:"symbol"`
	Thesis      string `json:"thesis"`
	Directive   string `json:"directive"`
}

// EvaluatorReport is produced exactly once per evaluator per run, either a
// confidence-bearing analysis or a failure marker. Immutable once produced.
type EvaluatorReport struct {
	EvaluatorID string  `json:"evaluator_id"`
	Analysis    string  `json:"analysis,omitempty"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale,omitempty"`
	Failed      bool    `json:"failed"`
	FailReason  string  `json:"fail_reason,omitempty"`
	ElapsedMS   int64   `json:"elapsed_ms,omitempty"`
}

// FailedReport builds the failure marker for an evaluator that errored or
// timed out. Its confidence is excluded from aggregation but the row is
// still recorded.
func FailedReport(evaluatorID, reason string) EvaluatorReport {
	return EvaluatorReport{EvaluatorID: evaluatorID, Failed: true, FailReason: reason}
}

// AggregateScore is the synthesis of all successful evaluator confidences.
type AggregateScore struct {
	Mean      float64 `json:"mean"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Verdict   Verdict `json:"verdict"`
}

// TimelineEvent is one named lifecycle step with its wall-clock timestamp.
// Used only for observability, never for control decisions.
type TimelineEvent struct {
	Stage  string    `json:"stage"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Decision is the finalized outcome of one pipeline run. Immutable once
// finalized; persisted and optionally disseminated.
type Decision struct {
	SubmissionID SubmissionID      `json:"submission_id"`
	Symbol       string            `json:"symbol"`
	Source       string            `json:"source,omitempty"`
	Score        AggregateScore    `json:"score"`
	Rationale    string            `json:"rationale,omitempty"`
	Reports      []EvaluatorReport `json:"reports"`
	ObjectRef    string            `json:"object_ref,omitempty"`
	Dissemination string           `json:"dissemination,omitempty"` // "ok", "disabled", or failure reason
	Timeline     []TimelineEvent   `json:"timeline"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Submission is the durable status projection row.
type Submission struct {
	ID         SubmissionID `json:"id"`
	Letter     Letter       `json:"letter"`
	Status     Status       `json:"status"`
	FailReason string       `json:"fail_reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// AgentRecord is one analytic row persisted per evaluator plus one for the
// synthesizer. Rows are written only after the synthesizer record is ready so
// per-agent rows and the verdict are never partially visible.
type AgentRecord struct {
	SubmissionID SubmissionID `json:"submission_id"`
	AgentID      string       `json:"agent_id"`
	Analysis     string       `json:"analysis,omitempty"`
	Confidence   float64      `json:"confidence"`
	Failed       bool         `json:"failed"`
	FailReason   string       `json:"fail_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
