package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

type SubmissionRepository struct{ db *sql.DB }

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository { return &SubmissionRepository{db: db} }

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// CreatePending insert submission row with status pending. Idempotent.
func (r *SubmissionRepository) CreatePending(ctx context.Context, id domain.SubmissionID, letter domain.Letter) error {
	const q = `
INSERT INTO submissions
(id, symbol, thesis, submitter_id, source, metadata_json, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING;`

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
UPDATE submissions SET status=$1, fail_reason=$2, updated_at=$3
WHERE id=$4 AND status <> $5;`
	_, err := r.db.ExecContext(ctx, q, domain.StatusFailed, reason, time.Now(), id, domain.StatusCompleted)
	return err
}

func (r *SubmissionRepository) WriteAgentRecords(ctx context.Context, id domain.SubmissionID, reports []domain.EvaluatorReport, synthesizer domain.AgentRecord) error {
	const q = `
INSERT INTO submission_agents
(submission_id, agent_id, analysis, confidence, failed, fail_reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (submission_id, agent_id) DO UPDATE SET
 analysis = EXCLUDED.analysis,
 confidence = EXCLUDED.confidence,
 failed = EXCLUDED.failed,
 fail_reason = EXCLUDED.fail_reason;`

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

func (r *SubmissionRepository) CompleteWithDecision(ctx context.Context, id domain.SubmissionID, d *domain.Decision) error {
	const qDecision = `
INSERT INTO council_decisions
(submission_id, symbol, source, verdict, mean_confidence, succeeded, failed,
 rationale, reports_json, timeline_json, object_ref, dissemination, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (submission_id) DO UPDATE SET
 verdict = EXCLUDED.verdict,
 mean_confidence = EXCLUDED.mean_confidence,
 succeeded = EXCLUDED.succeeded,
 failed = EXCLUDED.failed,
 rationale = EXCLUDED.rationale,
 reports_json = EXCLUDED.reports_json,
 timeline_json = EXCLUDED.timeline_json;`

	const qStatus = `
INSERT INTO submissions (id, symbol, thesis, submitter_id, source, metadata_json, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at;`

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
	const q = `UPDATE council_decisions SET object_ref=$1, dissemination=$2, timeline_json=$3 WHERE submission_id=$4;`
	tl, err := json.Marshal(timeline)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, objectRef, outcome, string(tl), id)
	return err
}

func (r *SubmissionRepository) Get(ctx context.Context, id domain.SubmissionID) (*domain.Submission, error) {
	const q = `
SELECT id, symbol, thesis, submitter_id, source, metadata_json, status, fail_reason, created_at, updated_at
FROM submissions WHERE id=$1 LIMIT 1;`
	return scanSubmission(r.db.QueryRowContext(ctx, q, id))
}

func (r *SubmissionRepository) GetDecision(ctx context.Context, id domain.SubmissionID) (*domain.Decision, error) {
	const q = `
SELECT submission_id, symbol, source, verdict, mean_confidence, succeeded, failed,
       rationale, reports_json, timeline_json, object_ref, dissemination, created_at
FROM council_decisions WHERE submission_id=$1 LIMIT 1;`
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

func (r *SubmissionRepository) NextPending(ctx context.Context) (*domain.Submission, error) {
	const q = `
SELECT id, symbol, thesis, submitter_id, source, metadata_json, status, fail_reason, created_at, updated_at
FROM submissions WHERE status=$1 ORDER BY created_at ASC, id ASC LIMIT 1;`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, q, domain.StatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// Claim flips pending -> processing for exactly one consumer; both the
// in-memory drain loop and the polling worker go through this guard.
func (r *SubmissionRepository) Claim(ctx context.Context, id domain.SubmissionID) (bool, error) {
	const q = `UPDATE submissions SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4;`
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
