package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// CreatePending insert submission row with status pending. Idempotent: a
// replayed insert leaves an existing row untouched.
func (r *SubmissionRepository) CreatePending(ctx context.Context, id domain.SubmissionID, letter domain.Letter) error {
	const q = `
INSERT INTO submissions
(id, symbol, thesis, submitter_id, source, metadata_json, status, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE id=id;
`
	metadata, err := json.Marshal(letter.Metadata)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = r.db.ExecContext(ctx, q,
		id, letter.Symbol, letter.Thesis, stringOrDash(letter.SubmitterID), stringOrDash(letter.Source),
		string(metadata), domain.StatusPending, now, now,
	)
	return err
}

func (r *SubmissionRepository) MarkFailed(ctx context.Context, id domain.SubmissionID, reason string) error {
	const q = `
UPDATE submissions SET status=?, fail_reason=?, updated_at=?
WHERE id=? AND status <> ?;
`
	_, err := r.db.ExecContext(ctx, q, domain.StatusFailed, reason, time.Now(), id, domain.StatusCompleted)
	return err
}

// WriteAgentRecords stores one analytic row per evaluator plus the
// synthesizer row in a single transaction, so the set is never partially
// visible.
func (r *SubmissionRepository) WriteAgentRecords(ctx context.Context, id domain.SubmissionID, reports []domain.EvaluatorReport, synthesizer domain.AgentRecord) error {
	const q = `
INSERT INTO submission_agents
(submission_id, agent_id, analysis, confidence, failed, fail_reason, created_at)
VALUES (?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 analysis=VALUES(analysis), confidence=VALUES(confidence),
 failed=VALUES(failed), fail_reason=VALUES(fail_reason);
`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, rep := range reports {
		if _, err := tx.ExecContext(ctx, q,
			id, rep.EvaluatorID, rep.Analysis, rep.Confidence, rep.Failed, rep.FailReason, now,
		); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, q,
		id, synthesizer.AgentID, synthesizer.Analysis, synthesizer.Confidence,
		synthesizer.Failed, synthesizer.FailReason, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteWithDecision upserts the decision payload and flips the
// submission to completed in one transaction.
func (r *SubmissionRepository) CompleteWithDecision(ctx context.Context, id domain.SubmissionID, d *domain.Decision) error {
	const qDecision = `
INSERT INTO council_decisions
(submission_id, symbol, source, verdict, mean_confidence, succeeded, failed,
 rationale, reports_json, timeline_json, object_ref, dissemination, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 verdict=VALUES(verdict), mean_confidence=VALUES(mean_confidence),
 succeeded=VALUES(succeeded), failed=VALUES(failed),
 rationale=VALUES(rationale), reports_json=VALUES(reports_json),
 timeline_json=VALUES(timeline_json);
`
	const qStatus = `
INSERT INTO submissions (id, symbol, thesis, submitter_id, source, metadata_json, status, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE status=VALUES(status), updated_at=VALUES(updated_at);
`
	reports, err := json.Marshal(d.Reports)
	if err != nil {
		return err
	}
	timeline, err := json.Marshal(d.Timeline)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, qDecision,
		id, d.Symbol, stringOrDash(d.Source), d.Score.Verdict, d.Score.Mean,
		d.Score.Succeeded, d.Score.Failed, d.Rationale,
		string(reports), string(timeline), d.ObjectRef, d.Dissemination, createdAt,
	); err != nil {
		return err
	}
	// Upsert so the projection stays consistent even if the pending insert
	// was lost.
	if _, err := tx.ExecContext(ctx, qStatus,
		id, d.Symbol, "", "-", stringOrDash(d.Source), "{}",
		domain.StatusCompleted, createdAt, time.Now(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordDissemination stamps the outcome plus the final timeline, which by
// now includes the persisted and dissemination events.
func (r *SubmissionRepository) RecordDissemination(ctx context.Context, id domain.SubmissionID, objectRef, outcome string, timeline []domain.TimelineEvent) error {
	const q = `
UPDATE council_decisions SET object_ref=?, dissemination=?, timeline_json=? WHERE submission_id=?;
`
	tl, err := json.Marshal(timeline)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, objectRef, outcome, string(tl), id)
	return err
}

// Get by ID
func (r *SubmissionRepository) Get(ctx context.Context, id domain.SubmissionID) (*domain.Submission, error) {
	const q = `
SELECT id, symbol, thesis, submitter_id, source, metadata_json, status, fail_reason, created_at, updated_at
FROM submissions WHERE id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)
	return scanSubmission(row)
}

func (r *SubmissionRepository) GetDecision(ctx context.Context, id domain.SubmissionID) (*domain.Decision, error) {
	const q = `
SELECT submission_id, symbol, source, verdict, mean_confidence, succeeded, failed,
       rationale, reports_json, timeline_json, object_ref, dissemination, created_at
FROM council_decisions WHERE submission_id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)

	var d domain.Decision
	var reportsJSON, timelineJSON string
	if err := row.Scan(
		&d.SubmissionID, &d.Symbol, &d.Source, &d.Score.Verdict, &d.Score.Mean,
		&d.Score.Succeeded, &d.Score.Failed,
		&d.Rationale, &reportsJSON, &timelineJSON, &d.ObjectRef, &d.Dissemination, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reportsJSON), &d.Reports); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(timelineJSON), &d.Timeline); err != nil {
		return nil, err
	}
	return &d, nil
}

// NextPending returns the oldest pending submission, or nil when the
// backlog is empty.
func (r *SubmissionRepository) NextPending(ctx context.Context) (*domain.Submission, error) {
	const q = `
SELECT id, symbol, thesis, submitter_id, source, metadata_json, status, fail_reason, created_at, updated_at
FROM submissions WHERE status=? ORDER BY created_at ASC, id ASC LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, domain.StatusPending)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// Claim flips pending -> processing for exactly one consumer; a row another
// consumer already took yields false. Both the in-memory drain loop and the
// polling worker go through this before running the pipeline.
func (r *SubmissionRepository) Claim(ctx context.Context, id domain.SubmissionID) (bool, error) {
	const q = `
UPDATE submissions SET status=?, updated_at=? WHERE id=? AND status=?;
`
	res, err := r.db.ExecContext(ctx, q, domain.StatusProcessing, time.Now(), id, domain.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*domain.Submission, error) {
	var s domain.Submission
	var metadataJSON string
	var failReason sql.NullString
	if err := row.Scan(
		&s.ID, &s.Letter.Symbol, &s.Letter.Thesis, &s.Letter.SubmitterID, &s.Letter.Source,
		&metadataJSON, &s.Status, &failReason, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.FailReason = failReason.String
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &s.Letter.Metadata); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
