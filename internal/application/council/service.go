package council

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/alphacouncil/internal/application"
	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/health"
	"github.com/bryanwahyu/alphacouncil/internal/queue"
)

// Service implements the submission use-cases: admission into the queue and
// the per-task decision pipeline. One Service instance is shared by the HTTP
// surface and the drain loop; Process is only ever called by a single
// consumer at a time.
type Service struct {
	Transport domain.Transport
	Repo      domain.Repository
	Publisher domain.Publisher
	Queue     *queue.Queue
	Monitor   *health.Monitor
	Clock     application.Clock

	Timeout     time.Duration // shared per-run evaluator budget
	Threshold   float64       // pass when mean confidence >= Threshold
	Disseminate bool
}

// Submit admits a letter: the queue consults the rate limiter and capacity
// before any state change, then a pending row is created for the accepted
// task. A rejected admission returns immediately with its reason.
func (s *Service) Submit(ctx context.Context, letter domain.Letter) (domain.SubmissionID, error) {
	task := domain.Task{
		SubmissionID: domain.SubmissionID(uuid.New().String()),
		Letter:       letter,
		EnqueuedAt:   s.Clock.Now(),
	}
	id, err := s.Queue.Enqueue(task)
	if err != nil {
		return "", err
	}
	if err := s.Repo.CreatePending(ctx, id, letter); err != nil {
		// The task is already accepted; the completed/failed upsert at the
		// end of the run repairs the projection. Do not fail the admission.
		log.Printf("submit: pending row write failed submission=%s err=%v", id, err)
	}
	return id, nil
}

// Run drains the queue until ctx is cancelled, processing one task at a time.
func (s *Service) Run(ctx context.Context) error {
	return s.Queue.Drain(ctx, func(ctx context.Context, task domain.Task) {
		if _, err := s.Process(ctx, task); err != nil {
			log.Printf("pipeline failed submission=%s err=%v", task.SubmissionID, err)
		}
	})
}

// Process runs the full decision pipeline for one task:
// plan -> dispatch -> collect -> aggregate -> persist -> disseminate.
// Individual evaluator failures are absorbed; planning and persistence
// errors are fatal to the run and leave the submission marked failed.
func (s *Service) Process(ctx context.Context, task domain.Task) (*domain.Decision, error) {
	tr := newTracer(s.Clock)
	tr.mark("letter.received", "symbol="+task.Letter.Symbol)

	missions := PlanMissions(task.Letter, s.Transport.EvaluatorIDs())
	if len(missions) == 0 {
		return nil, s.fail(ctx, task.SubmissionID, "no evaluators configured", domain.ErrNoEvaluatorResponse)
	}

	// Ensure the durable row exists (idempotent), then claim it through the
	// pending -> processing guard. The claim is what makes the in-memory
	// drain and the polling worker safe side by side: whichever consumer
	// flips the row first owns the run, the other skips.
	if err := s.Repo.CreatePending(ctx, task.SubmissionID, task.Letter); err != nil {
		perr := &domain.PersistenceError{Op: "create pending", Err: err}
		return nil, s.fail(ctx, task.SubmissionID, perr.Error(), perr)
	}
	claimed, err := s.Repo.Claim(ctx, task.SubmissionID)
	if err != nil {
		perr := &domain.PersistenceError{Op: "claim", Err: err}
		return nil, s.fail(ctx, task.SubmissionID, perr.Error(), perr)
	}
	if !claimed {
		log.Printf("submission already claimed by another consumer, skipping submission=%s", task.SubmissionID)
		return nil, nil
	}

	reports := s.dispatch(ctx, missions, tr)

	score, err := domain.Aggregate(reports, s.Threshold)
	if err != nil {
		return nil, s.fail(ctx, task.SubmissionID, "all evaluators failed", err)
	}
	tr.mark("synthesis.complete", fmt.Sprintf("mean=%.2f verdict=%s", score.Mean, score.Verdict))

	decision := &domain.Decision{
		SubmissionID: task.SubmissionID,
		Symbol:       task.Letter.Symbol,
		Source:       task.Letter.Source,
		Score:        score,
		Rationale:    summarize(reports),
		Reports:      reports,
		// Stamped before persistence so the durable row and the archive
		// carry the events, not just the in-memory decision.
		Timeline:  tr.snapshot(),
		CreatedAt: s.Clock.Now(),
	}

	// Per-agent rows go in together with the synthesizer record, after the
	// synthesizer record is ready, so analytics never see a partial set.
	synth := domain.AgentRecord{
		SubmissionID: task.SubmissionID,
		AgentID:      "synthesizer",
		Analysis:     decision.Rationale,
		Confidence:   score.Mean,
		CreatedAt:    decision.CreatedAt,
	}
	if err := s.Repo.WriteAgentRecords(ctx, task.SubmissionID, reports, synth); err != nil {
		perr := &domain.PersistenceError{Op: "write agent records", Err: err}
		return nil, s.fail(ctx, task.SubmissionID, perr.Error(), perr)
	}
	if err := s.Repo.CompleteWithDecision(ctx, task.SubmissionID, decision); err != nil {
		perr := &domain.PersistenceError{Op: "complete", Err: err}
		return nil, s.fail(ctx, task.SubmissionID, perr.Error(), perr)
	}
	tr.mark("persisted", "")

	s.disseminate(ctx, decision, tr)

	// The dissemination outcome and the trailing timeline events land in the
	// durable row here; a failure is logged, never fatal.
	decision.Timeline = tr.snapshot()
	if err := s.Repo.RecordDissemination(ctx, decision.SubmissionID, decision.ObjectRef, decision.Dissemination, decision.Timeline); err != nil {
		log.Printf("dissemination record failed submission=%s err=%v", decision.SubmissionID, err)
	}

	s.Monitor.RunFinalized(s.Clock.Now())
	log.Printf("pipeline finalized submission=%s verdict=%s mean=%.2f failed_evaluators=%d",
		task.SubmissionID, score.Verdict, score.Mean, score.Failed)
	return decision, nil
}

// dispatch fans out all missions concurrently and collects every report,
// converting timeouts and errors into failure markers. All calls are issued
// before any is awaited; the wait shares one deadline through the transport.
func (s *Service) dispatch(ctx context.Context, missions []domain.Mission, tr *tracer) []domain.EvaluatorReport {
	reports := make([]domain.EvaluatorReport, len(missions))

	var wg sync.WaitGroup
	for i, m := range missions {
		tr.mark("mission.dispatched", "evaluator="+m.EvaluatorID)
		wg.Add(1)
		go func(i int, m domain.Mission) {
			defer wg.Done()
			rep, err := s.Transport.Call(ctx, m.EvaluatorID, m, s.Timeout)
			if err != nil {
				rep = domain.FailedReport(m.EvaluatorID, err.Error())
			}
			if rep.EvaluatorID == "" {
				rep.EvaluatorID = m.EvaluatorID
			}
			reports[i] = rep
		}(i, m)
	}
	wg.Wait()

	for _, rep := range reports {
		if rep.Failed {
			tr.mark("evaluator.failed", rep.EvaluatorID+": "+rep.FailReason)
			s.Monitor.EvaluatorFailure()
		} else {
			tr.mark("evaluator.returned", fmt.Sprintf("%s confidence=%.2f", rep.EvaluatorID, rep.Confidence))
		}
	}
	return reports
}

// disseminate is best-effort: a failure here is recorded on the decision but
// never reverts completion. The caller persists the outcome.
func (s *Service) disseminate(ctx context.Context, decision *domain.Decision, tr *tracer) {
	if !s.Disseminate || s.Publisher == nil {
		decision.Dissemination = "disabled"
		return
	}

	ref, err := s.Publisher.Publish(ctx, decision)
	if err != nil {
		derr := &domain.DisseminationError{Err: err}
		decision.Dissemination = derr.Error()
		tr.mark("dissemination.failed", err.Error())
	} else {
		decision.ObjectRef = ref
		decision.Dissemination = "ok"
		tr.mark("disseminated", ref)
	}
}

func (s *Service) fail(ctx context.Context, id domain.SubmissionID, reason string, err error) error {
	if merr := s.Repo.MarkFailed(ctx, id, reason); merr != nil {
		log.Printf("mark failed errored submission=%s err=%v", id, merr)
	}
	s.Monitor.PipelineFailure()
	return err
}

// summarize renders one line per evaluator for the decision rationale.
func summarize(reports []domain.EvaluatorReport) string {
	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		if r.Failed {
			lines = append(lines, fmt.Sprintf("%s: no report (%s)", strings.ToUpper(r.EvaluatorID), r.FailReason))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s (confidence=%.2f)", strings.ToUpper(r.EvaluatorID), headline(r.Analysis), r.Confidence))
	}
	return strings.Join(lines, "\n")
}

// headline keeps the first non-empty line of an analysis, truncated.
func headline(analysis string) string {
	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 200 {
			return line[:200] + "..."
		}
		return line
	}
	return ""
}
