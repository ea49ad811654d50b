package council

// Aggregate computes the arithmetic mean of all successful confidences and
// derives the verdict. Failed reports are excluded from the mean but counted.
// The threshold comparison is a closed interval: a mean exactly at the
// threshold passes.
func Aggregate(reports []EvaluatorReport, threshold float64) (AggregateScore, error) {
	var sum float64
	var ok, failed int
	for _, r := range reports {
		if r.Failed {
			failed++
			continue
		}
		sum += r.Confidence
		ok++
	}
	if ok == 0 {
		return AggregateScore{Failed: failed, Verdict: VerdictNotPass}, ErrNoEvaluatorResponse
	}

	score := AggregateScore{
		Mean:      sum / float64(ok),
		Succeeded: ok,
		Failed:    failed,
		Verdict:   VerdictNotPass,
	}
	if score.Mean >= threshold {
		score.Verdict = VerdictPass
	}
	return score, nil
}
