package dissemination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

// ObjectStore is the archive behind the publisher; the minio store
// implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, payload []byte) (string, error)
}

// Publisher archives finalized decisions to object storage and optionally
// announces them to a webhook. Uploads retry with a bounded backoff; the
// pipeline treats the whole thing as best-effort.
type Publisher struct {
	Store      ObjectStore
	WebhookURL string
	Client     *http.Client

	MaxRetries int           // default 3
	Backoff    time.Duration // base backoff, grows linearly per attempt; default 1.5s
}

func NewPublisher(store ObjectStore, webhookURL string) *Publisher {
	return &Publisher{
		Store:      store,
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 3,
		Backoff:    1500 * time.Millisecond,
	}
}

// Publish uploads the decision archive and returns its object reference.
// The webhook announcement is fire-and-forget: its failure is logged but
// does not fail the publish.
func (p *Publisher) Publish(ctx context.Context, d *council.Decision) (string, error) {
	payload, err := json.MarshalIndent(archiveOf(d), "", "  ")
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("decisions/%s/%s.json", d.Symbol, d.SubmissionID)
	ref, err := p.putWithRetry(ctx, key, payload)
	if err != nil {
		return "", err
	}

	if p.WebhookURL != "" {
		if err := p.announce(ctx, d, ref); err != nil {
			log.Printf("dissemination announce failed submission=%s err=%v", d.SubmissionID, err)
		}
	}
	return ref, nil
}

func (p *Publisher) putWithRetry(ctx context.Context, key string, payload []byte) (string, error) {
	retries := p.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 1500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		ref, err := p.Store.Put(ctx, key, payload)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		log.Printf("decision upload failed (attempt %d/%d): %v", attempt, retries, err)
		if attempt == retries {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("upload gave up after %d attempts: %w", retries, lastErr)
}

// archive is the durable dissemination payload.
type archive struct {
	Decision struct {
		SubmissionID council.SubmissionID   `json:"submission_id"`
		Symbol       string                 `json:"symbol"`
		Verdict      council.Verdict        `json:"verdict"`
		Mean         float64                `json:"mean"`
		Rationale    string                 `json:"rationale,omitempty"`
	} `json:"decision"`
	Reports  []council.EvaluatorReport `json:"reports"`
	Timeline []council.TimelineEvent   `json:"timeline,omitempty"`
}

func archiveOf(d *council.Decision) archive {
	var a archive
	a.Decision.SubmissionID = d.SubmissionID
	a.Decision.Symbol = d.Symbol
	a.Decision.Verdict = d.Score.Verdict
	a.Decision.Mean = d.Score.Mean
	a.Decision.Rationale = d.Rationale
	a.Reports = d.Reports
	a.Timeline = d.Timeline
	return a
}

type announcement struct {
	SubmissionID council.SubmissionID `json:"submission_id"`
	Symbol       string               `json:"symbol"`
	Verdict      council.Verdict      `json:"verdict"`
	Mean         float64              `json:"mean"`
	ObjectRef    string               `json:"object_ref"`
}

func (p *Publisher) announce(ctx context.Context, d *council.Decision, ref string) error {
	body, err := json.Marshal(announcement{
		SubmissionID: d.SubmissionID,
		Symbol:       d.Symbol,
		Verdict:      d.Score.Verdict,
		Mean:         d.Score.Mean,
		ObjectRef:    ref,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
