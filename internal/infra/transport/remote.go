package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

// Remote calls evaluators running as an equivalent remote service, one
// endpoint per evaluator. The response body is the evaluator's report JSON.
type Remote struct {
	order     []string
	endpoints map[string]string
	client    *http.Client
}

func NewRemote(endpoints map[string]string, order []string) *Remote {
	eps := make(map[string]string, len(endpoints))
	ids := make([]string, 0, len(order))
	for _, id := range order {
		if url, ok := endpoints[id]; ok && url != "" {
			eps[id] = url
			ids = append(ids, id)
		}
	}
	return &Remote{
		order:     ids,
		endpoints: eps,
		client:    &http.Client{},
	}
}

func (t *Remote) EvaluatorIDs() []string {
	return append([]string(nil), t.order...)
}

func (t *Remote) Call(ctx context.Context, evaluatorID string, m council.Mission, timeout time.Duration) (council.EvaluatorReport, error) {
	endpoint, ok := t.endpoints[evaluatorID]
	if !ok {
		return council.EvaluatorReport{}, fmt.Errorf("no endpoint configured for evaluator %q", evaluatorID)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(m)
	if err != nil {
		return council.EvaluatorReport{}, err
	}
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return council.EvaluatorReport{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return council.EvaluatorReport{}, council.ErrEvaluatorTimeout
		}
		return council.EvaluatorReport{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return council.EvaluatorReport{}, fmt.Errorf("evaluator %s returned %d: %s", evaluatorID, resp.StatusCode, snippet)
	}

	var report council.EvaluatorReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return council.EvaluatorReport{}, fmt.Errorf("evaluator %s returned invalid JSON: %w", evaluatorID, err)
	}
	if report.EvaluatorID == "" {
		report.EvaluatorID = evaluatorID
	}
	return report, nil
}
