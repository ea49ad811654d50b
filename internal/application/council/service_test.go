package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/application"
	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/health"
	"github.com/bryanwahyu/alphacouncil/internal/queue"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeTransport struct {
	log     *callLog
	ids     []string
	call    func(id string, m domain.Mission) (domain.EvaluatorReport, error)
	latency time.Duration
}

func (t *fakeTransport) EvaluatorIDs() []string { return t.ids }

func (t *fakeTransport) Call(ctx context.Context, id string, m domain.Mission, _ time.Duration) (domain.EvaluatorReport, error) {
	t.log.add("call:" + id)
	if t.latency > 0 {
		time.Sleep(t.latency)
	}
	return t.call(id, m)
}

type fakeRepo struct {
	log *callLog

	mu             sync.Mutex
	statuses       map[domain.SubmissionID]domain.Status
	failReasons    map[domain.SubmissionID]string
	decisions      map[domain.SubmissionID]*domain.Decision
	agentRecords   map[domain.SubmissionID][]domain.AgentRecord
	dissemination  map[domain.SubmissionID]string
	finalTimelines map[domain.SubmissionID][]domain.TimelineEvent

	// timeline as it was at the CompleteWithDecision call, before the
	// dissemination update touches the row again
	timelineAtComplete map[domain.SubmissionID][]domain.TimelineEvent

	claimErr    error
	completeErr error
}

func newFakeRepo(log *callLog) *fakeRepo {
	return &fakeRepo{
		log:            log,
		statuses:       make(map[domain.SubmissionID]domain.Status),
		failReasons:    make(map[domain.SubmissionID]string),
		decisions:      make(map[domain.SubmissionID]*domain.Decision),
		agentRecords:   make(map[domain.SubmissionID][]domain.AgentRecord),
		dissemination:      make(map[domain.SubmissionID]string),
		finalTimelines:     make(map[domain.SubmissionID][]domain.TimelineEvent),
		timelineAtComplete: make(map[domain.SubmissionID][]domain.TimelineEvent),
	}
}

func (r *fakeRepo) CreatePending(_ context.Context, id domain.SubmissionID, _ domain.Letter) error {
	r.log.add("createPending")
	r.mu.Lock()
	defer r.mu.Unlock()
	// Idempotent like the SQL repos: a replayed insert leaves the row alone.
	if _, ok := r.statuses[id]; !ok {
		r.statuses[id] = domain.StatusPending
	}
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id domain.SubmissionID, reason string) error {
	r.log.add("markFailed")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = domain.StatusFailed
	r.failReasons[id] = reason
	return nil
}

func (r *fakeRepo) WriteAgentRecords(_ context.Context, id domain.SubmissionID, reports []domain.EvaluatorReport, synth domain.AgentRecord) error {
	r.log.add("writeAgentRecords")
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]domain.AgentRecord, 0, len(reports)+1)
	for _, rep := range reports {
		records = append(records, domain.AgentRecord{
			SubmissionID: id,
			AgentID:      rep.EvaluatorID,
			Confidence:   rep.Confidence,
			Failed:       rep.Failed,
			FailReason:   rep.FailReason,
		})
	}
	records = append(records, synth)
	r.agentRecords[id] = records
	return nil
}

func (r *fakeRepo) CompleteWithDecision(_ context.Context, id domain.SubmissionID, d *domain.Decision) error {
	r.log.add("complete")
	if r.completeErr != nil {
		return r.completeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = domain.StatusCompleted
	// Snapshot like the SQL repos do: they marshal the decision at call
	// time, so later mutations of the pointer must not leak into the row.
	cp := *d
	cp.Reports = append([]domain.EvaluatorReport(nil), d.Reports...)
	cp.Timeline = append([]domain.TimelineEvent(nil), d.Timeline...)
	r.decisions[id] = &cp
	r.timelineAtComplete[id] = append([]domain.TimelineEvent(nil), d.Timeline...)
	return nil
}

func (r *fakeRepo) RecordDissemination(_ context.Context, id domain.SubmissionID, objectRef, outcome string, timeline []domain.TimelineEvent) error {
	r.log.add("recordDissemination")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dissemination[id] = outcome
	r.finalTimelines[id] = append([]domain.TimelineEvent(nil), timeline...)
	if d, ok := r.decisions[id]; ok {
		d.ObjectRef = objectRef
		d.Dissemination = outcome
		d.Timeline = r.finalTimelines[id]
	}
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id domain.SubmissionID) (*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &domain.Submission{ID: id, Status: status, FailReason: r.failReasons[id]}, nil
}

func (r *fakeRepo) GetDecision(_ context.Context, id domain.SubmissionID) (*domain.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decisions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (r *fakeRepo) NextPending(context.Context) (*domain.Submission, error) { return nil, nil }

// Claim mirrors the rows-affected guard: only a pending row can be taken.
func (r *fakeRepo) Claim(_ context.Context, id domain.SubmissionID) (bool, error) {
	r.log.add("claim")
	if r.claimErr != nil {
		return false, r.claimErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses[id] != domain.StatusPending {
		return false, nil
	}
	r.statuses[id] = domain.StatusProcessing
	return true, nil
}

type fakePublisher struct {
	ref string
	err error

	publishedEvents int // timeline length seen on the archived decision
}

func (p *fakePublisher) Publish(_ context.Context, d *domain.Decision) (string, error) {
	p.publishedEvents = len(d.Timeline)
	return p.ref, p.err
}

func testClock() *application.FixedClock {
	return &application.FixedClock{Current: time.Unix(1700000000, 0), Step: time.Millisecond}
}

func newService(t *fakeTransport, r *fakeRepo, p domain.Publisher) *Service {
	return &Service{
		Transport:   t,
		Repo:        r,
		Publisher:   p,
		Queue:       queue.New(0, nil, nil),
		Monitor:     health.NewMonitor(),
		Clock:       testClock(),
		Timeout:     time.Second,
		Threshold:   0.75,
		Disseminate: p != nil,
	}
}

func letterTask(id string) domain.Task {
	return domain.Task{
		SubmissionID: domain.SubmissionID(id),
		Letter:       domain.Letter{Symbol: "NEO", Thesis: "breakout incoming", SubmitterID: "alice"},
	}
}

func TestProcessAggregatesAndPersists(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical", "sentiment", "macro"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			switch id {
			case "technical":
				return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.9, Analysis: "clean breakout"}, nil
			case "sentiment":
				return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.6, Analysis: "mildly bullish"}, nil
			default:
				return domain.EvaluatorReport{}, errors.New("upstream down")
			}
		},
	}
	repo := newFakeRepo(log)
	svc := newService(tp, repo, &fakePublisher{ref: "obj-1"})

	decision, err := svc.Process(context.Background(), letterTask("sub-1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if decision.Score.Mean != 0.75 {
		t.Fatalf("mean = %v, want 0.75", decision.Score.Mean)
	}
	if decision.Score.Verdict != domain.VerdictPass {
		t.Fatalf("verdict = %s, want pass (closed interval at threshold)", decision.Score.Verdict)
	}
	if decision.Score.Failed != 1 {
		t.Fatalf("failed count = %d, want 1", decision.Score.Failed)
	}
	if len(decision.Reports) != 3 {
		t.Fatalf("reports = %d, want one per evaluator including the failed one", len(decision.Reports))
	}
	if decision.ObjectRef != "obj-1" || decision.Dissemination != "ok" {
		t.Fatalf("dissemination = %q ref=%q, want ok/obj-1", decision.Dissemination, decision.ObjectRef)
	}

	sub, _ := repo.Get(context.Background(), "sub-1")
	if sub.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", sub.Status)
	}
	if records := repo.agentRecords["sub-1"]; len(records) != 4 {
		t.Fatalf("agent records = %d, want 3 evaluators + synthesizer", len(records))
	} else if records[3].AgentID != "synthesizer" {
		t.Fatalf("last record = %s, want synthesizer", records[3].AgentID)
	}
	if svc.Monitor.Snapshot().EvaluatorFailures != 1 {
		t.Fatal("evaluator failure not counted")
	}

	// The claim must precede every dispatch, agent rows must precede the
	// completed decision.
	calls := log.snapshot()
	idx := func(name string) int {
		for i, c := range calls {
			if c == name {
				return i
			}
		}
		return -1
	}
	for _, id := range tp.ids {
		if idx("claim") > idx("call:"+id) {
			t.Fatalf("dispatch of %s before claim: %v", id, calls)
		}
	}
	if idx("writeAgentRecords") > idx("complete") {
		t.Fatalf("decision completed before agent records: %v", calls)
	}
}

func TestProcessFanOutIsParallel(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log:     log,
		ids:     []string{"technical", "sentiment", "macro"},
		latency: 50 * time.Millisecond,
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.5}, nil
		},
	}
	svc := newService(tp, newFakeRepo(log), nil)

	start := time.Now()
	if _, err := svc.Process(context.Background(), letterTask("sub-par")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 140*time.Millisecond {
		t.Fatalf("pipeline took %v; evaluator calls appear sequential", elapsed)
	}
}

func TestProcessNoEvaluatorResponse(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical", "sentiment", "macro"},
		call: func(string, domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{}, errors.New("boom")
		},
	}
	repo := newFakeRepo(log)
	svc := newService(tp, repo, nil)

	_, err := svc.Process(context.Background(), letterTask("sub-2"))
	if !errors.Is(err, domain.ErrNoEvaluatorResponse) {
		t.Fatalf("err = %v, want ErrNoEvaluatorResponse", err)
	}

	sub, _ := repo.Get(context.Background(), "sub-2")
	if sub.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", sub.Status)
	}
	if _, err := repo.GetDecision(context.Background(), "sub-2"); err == nil {
		t.Fatal("decision persisted for a failed run")
	}
	if svc.Monitor.Snapshot().PipelineFailures != 1 {
		t.Fatal("pipeline failure not counted")
	}
}

func TestDisseminationFailureDoesNotRevertCompletion(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.9}, nil
		},
	}
	repo := newFakeRepo(log)
	svc := newService(tp, repo, &fakePublisher{err: errors.New("gateway unreachable")})

	decision, err := svc.Process(context.Background(), letterTask("sub-3"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if !strings.Contains(decision.Dissemination, "gateway unreachable") {
		t.Fatalf("dissemination = %q, want recorded failure", decision.Dissemination)
	}
	sub, _ := repo.Get(context.Background(), "sub-3")
	if sub.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed despite dissemination failure", sub.Status)
	}
	if outcome := repo.dissemination["sub-3"]; !strings.Contains(outcome, "gateway unreachable") {
		t.Fatalf("durable dissemination outcome = %q, want failure reason", outcome)
	}
}

func TestClaimErrorIsFatal(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.9}, nil
		},
	}
	repo := newFakeRepo(log)
	repo.claimErr = errors.New("connection refused")
	svc := newService(tp, repo, nil)

	var perr *domain.PersistenceError
	_, err := svc.Process(context.Background(), letterTask("sub-4"))
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	for _, c := range log.snapshot() {
		if strings.HasPrefix(c, "call:") {
			t.Fatal("evaluators dispatched after fatal persistence error")
		}
	}
}

func TestProcessTimelineOrder(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical", "sentiment"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.8}, nil
		},
	}
	svc := newService(tp, newFakeRepo(log), &fakePublisher{ref: "obj-9"})

	decision, err := svc.Process(context.Background(), letterTask("sub-5"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	var stages []string
	for _, ev := range decision.Timeline {
		stages = append(stages, ev.Stage)
	}
	want := []string{
		"letter.received",
		"mission.dispatched", "mission.dispatched",
		"evaluator.returned", "evaluator.returned",
		"synthesis.complete",
		"persisted",
		"disseminated",
	}
	if fmt.Sprint(stages) != fmt.Sprint(want) {
		t.Fatalf("timeline = %v, want %v", stages, want)
	}
	for i := 1; i < len(decision.Timeline); i++ {
		if decision.Timeline[i].At.Before(decision.Timeline[i-1].At) {
			t.Fatalf("timeline timestamps out of order at %d", i)
		}
	}
}

func TestTimelineReachesDurableRowAndArchive(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical", "sentiment"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.8}, nil
		},
	}
	repo := newFakeRepo(log)
	pub := &fakePublisher{ref: "obj-7"}
	svc := newService(tp, repo, pub)

	if _, err := svc.Process(context.Background(), letterTask("sub-6")); err != nil {
		t.Fatalf("process: %v", err)
	}

	// The row written by CompleteWithDecision must already carry the events
	// up to synthesis; an empty timeline there means it was stamped too late.
	atComplete := repo.timelineAtComplete["sub-6"]
	if len(atComplete) == 0 {
		t.Fatal("decision persisted with empty timeline")
	}
	if last := atComplete[len(atComplete)-1].Stage; last != "synthesis.complete" {
		t.Fatalf("last persisted stage = %s, want synthesis.complete", last)
	}
	if pub.publishedEvents == 0 {
		t.Fatal("archived decision carried no timeline events")
	}

	// The dissemination update must extend the stored timeline with the
	// trailing events.
	final := repo.finalTimelines["sub-6"]
	stages := make(map[string]bool, len(final))
	for _, ev := range final {
		stages[ev.Stage] = true
	}
	if !stages["persisted"] || !stages["disseminated"] {
		t.Fatalf("final stored timeline missing trailing stages: %v", final)
	}
	if d := repo.decisions["sub-6"]; len(d.Timeline) != len(final) {
		t.Fatalf("stored decision timeline = %d events, want %d", len(d.Timeline), len(final))
	}
}

func TestDisabledDisseminationIsRecorded(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.9}, nil
		},
	}
	repo := newFakeRepo(log)
	svc := newService(tp, repo, nil)

	if _, err := svc.Process(context.Background(), letterTask("sub-7")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome := repo.dissemination["sub-7"]; outcome != "disabled" {
		t.Fatalf("stored dissemination = %q, want disabled", outcome)
	}
}

func TestConcurrentConsumersRunPipelineOnce(t *testing.T) {
	log := &callLog{}
	tp := &fakeTransport{
		log: log,
		ids: []string{"technical"},
		call: func(id string, m domain.Mission) (domain.EvaluatorReport, error) {
			return domain.EvaluatorReport{EvaluatorID: id, Confidence: 0.7}, nil
		},
	}
	repo := newFakeRepo(log)
	svc := newService(tp, repo, nil)

	// The drain loop and the pending-row worker can hand the same submission
	// to the pipeline; the claim must let exactly one of them run it.
	task := letterTask("sub-8")
	results := make([]*domain.Decision, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := svc.Process(context.Background(), task)
			if err != nil {
				t.Errorf("process %d: %v", i, err)
			}
			results[i] = d
		}(i)
	}
	wg.Wait()

	ran := 0
	for _, d := range results {
		if d != nil {
			ran++
		}
	}
	if ran != 1 {
		t.Fatalf("pipeline ran %d times, want exactly once", ran)
	}
	completes := 0
	for _, c := range log.snapshot() {
		if c == "complete" {
			completes++
		}
	}
	if completes != 1 {
		t.Fatalf("decision completed %d times, want 1", completes)
	}
	if len(repo.agentRecords["sub-8"]) != 2 {
		t.Fatalf("agent records = %d, want 1 evaluator + synthesizer written once", len(repo.agentRecords["sub-8"]))
	}
}

func TestSubmitCreatesPendingRow(t *testing.T) {
	log := &callLog{}
	repo := newFakeRepo(log)
	svc := newService(&fakeTransport{log: log, ids: []string{"technical"}}, repo, nil)

	id, err := svc.Submit(context.Background(), domain.Letter{Symbol: "NEO", Thesis: "up", SubmitterID: "alice"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("submit returned empty id")
	}
	sub, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("pending row missing: %v", err)
	}
	if sub.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", sub.Status)
	}
	if svc.Queue.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1", svc.Queue.Depth())
	}
}
