package council

import (
	"errors"
	"testing"
)

func TestAggregateExcludesFailures(t *testing.T) {
	reports := []EvaluatorReport{
		{EvaluatorID: "technical", Confidence: 0.9},
		{EvaluatorID: "sentiment", Confidence: 0.6},
		FailedReport("macro", "timeout"),
	}

	score, err := Aggregate(reports, 0.75)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Mean != 0.75 {
		t.Fatalf("mean = %v, want 0.75", score.Mean)
	}
	if score.Succeeded != 2 || score.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 2/1", score.Succeeded, score.Failed)
	}
	// Closed interval: mean exactly at the threshold passes.
	if score.Verdict != VerdictPass {
		t.Fatalf("verdict = %s, want pass", score.Verdict)
	}
}

func TestAggregateBelowThreshold(t *testing.T) {
	reports := []EvaluatorReport{
		{EvaluatorID: "technical", Confidence: 0.2},
		{EvaluatorID: "sentiment", Confidence: 0.4},
	}
	score, err := Aggregate(reports, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Verdict != VerdictNotPass {
		t.Fatalf("verdict = %s, want not_pass", score.Verdict)
	}
}

func TestAggregateAllFailed(t *testing.T) {
	reports := []EvaluatorReport{
		FailedReport("technical", "boom"),
		FailedReport("sentiment", "boom"),
		FailedReport("macro", "boom"),
	}
	_, err := Aggregate(reports, 0.5)
	if !errors.Is(err, ErrNoEvaluatorResponse) {
		t.Fatalf("err = %v, want ErrNoEvaluatorResponse", err)
	}
}

// Re-deriving the score from a decision's stored reports must reproduce the
// same verdict.
func TestAggregateRoundTrip(t *testing.T) {
	reports := []EvaluatorReport{
		{EvaluatorID: "technical", Confidence: 0.81},
		{EvaluatorID: "sentiment", Confidence: 0.77},
		FailedReport("macro", "timeout"),
	}
	first, err := Aggregate(reports, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := Decision{Reports: reports, Score: first}

	again, err := Aggregate(d.Reports, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != first {
		t.Fatalf("re-derived score %+v != stored %+v", again, first)
	}
}
