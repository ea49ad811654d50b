package dissemination

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

type flakyStore struct {
	failures int
	puts     int
	lastKey  string
}

func (s *flakyStore) Put(_ context.Context, key string, payload []byte) (string, error) {
	s.puts++
	s.lastKey = key
	if s.puts <= s.failures {
		return "", errors.New("transient storage error")
	}
	return "http://archive/" + key, nil
}

func decision() *council.Decision {
	return &council.Decision{
		SubmissionID: "sub-1",
		Symbol:       "NEO",
		Score:        council.AggregateScore{Mean: 0.8, Succeeded: 3, Verdict: council.VerdictPass},
		Reports:      []council.EvaluatorReport{{EvaluatorID: "technical", Confidence: 0.8}},
	}
}

func fastPublisher(store ObjectStore) *Publisher {
	p := NewPublisher(store, "")
	p.Backoff = time.Millisecond
	return p
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{failures: 2}
	p := fastPublisher(store)

	ref, err := p.Publish(context.Background(), decision())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if store.puts != 3 {
		t.Fatalf("puts = %d, want 3 (two failures then success)", store.puts)
	}
	if !strings.Contains(ref, "decisions/NEO/sub-1.json") {
		t.Fatalf("ref = %q, want archive key with symbol and submission id", ref)
	}
}

func TestPublishGivesUpAfterBudget(t *testing.T) {
	store := &flakyStore{failures: 100}
	p := fastPublisher(store)

	if _, err := p.Publish(context.Background(), decision()); err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if store.puts != 3 {
		t.Fatalf("puts = %d, want exactly the retry budget of 3", store.puts)
	}
}

func TestPublishAnnouncesToWebhook(t *testing.T) {
	got := make(chan announcement, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a announcement
		json.NewDecoder(r.Body).Decode(&a)
		got <- a
	}))
	defer srv.Close()

	store := &flakyStore{}
	p := fastPublisher(store)
	p.WebhookURL = srv.URL

	if _, err := p.Publish(context.Background(), decision()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case a := <-got:
		if a.SubmissionID != "sub-1" || a.Verdict != council.VerdictPass {
			t.Fatalf("announcement = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never called")
	}
}

func TestPublishSurvivesWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &flakyStore{}
	p := fastPublisher(store)
	p.WebhookURL = srv.URL

	ref, err := p.Publish(context.Background(), decision())
	if err != nil {
		t.Fatalf("publish failed on webhook error: %v", err)
	}
	if ref == "" {
		t.Fatal("object ref lost on webhook error")
	}
}
