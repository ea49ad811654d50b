package council

import (
	"context"
	"time"
)

// Evaluator capability port: one specialist producing an independent
// confidence score and summary per mission.
type Evaluator interface {
	Produce(ctx context.Context, m Mission) (EvaluatorReport, error)
}

// Transport port abstracting local vs remote evaluator invocation. The
// pipeline is agnostic to which is behind it.
type Transport interface {
	Call(ctx context.Context, evaluatorID string, m Mission, timeout time.Duration) (EvaluatorReport, error)
	EvaluatorIDs() []string
}

// Repository port (interface untuk persistence)
type Repository interface {
	CreatePending(ctx context.Context, id SubmissionID, letter Letter) error
	MarkFailed(ctx context.Context, id SubmissionID, reason string) error
	WriteAgentRecords(ctx context.Context, id SubmissionID, reports []EvaluatorReport, synthesizer AgentRecord) error
	CompleteWithDecision(ctx context.Context, id SubmissionID, d *Decision) error
	// RecordDissemination stamps the dissemination outcome and the final
	// timeline onto the stored decision after completion.
	RecordDissemination(ctx context.Context, id SubmissionID, objectRef, outcome string, timeline []TimelineEvent) error

	Get(ctx context.Context, id SubmissionID) (*Submission, error)
	GetDecision(ctx context.Context, id SubmissionID) (*Decision, error)

	// NextPending feeds the polling worker; Claim is the pending ->
	// processing guard every consumer must win before running the pipeline.
	NextPending(ctx context.Context) (*Submission, error)
	Claim(ctx context.Context, id SubmissionID) (bool, error)
}

// Publisher port (dissemination): best-effort, bounded retry inside the
// implementation. Returns an object reference on success.
type Publisher interface {
	Publish(ctx context.Context, d *Decision) (string, error)
}
