package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/runner"
)

// Local invokes evaluators in-process through their runners. The pipeline
// sees the same contract as for the remote transport.
type Local struct {
	order   []string
	runners map[string]*runner.Runner
}

func NewLocal(runners []*runner.Runner) *Local {
	t := &Local{runners: make(map[string]*runner.Runner, len(runners))}
	for _, r := range runners {
		t.order = append(t.order, r.ID())
		t.runners[r.ID()] = r
	}
	return t
}

func (t *Local) EvaluatorIDs() []string {
	return append([]string(nil), t.order...)
}

func (t *Local) Call(ctx context.Context, evaluatorID string, m council.Mission, timeout time.Duration) (council.EvaluatorReport, error) {
	r, ok := t.runners[evaluatorID]
	if !ok {
		return council.EvaluatorReport{}, fmt.Errorf("no runner registered for evaluator %q", evaluatorID)
	}
	return r.Invoke(ctx, m, timeout), nil
}
