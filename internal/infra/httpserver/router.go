package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appcouncil "github.com/bryanwahyu/alphacouncil/internal/application/council"
	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/health"
	"github.com/bryanwahyu/alphacouncil/internal/middleware"
)

type Router struct {
	svc     *appcouncil.Service
	repo    domain.Repository
	monitor *health.Monitor
}

// NewRouter wires the admission API. apiKeys maps submitter identity to its
// key; when empty, auth is skipped (local development).
func NewRouter(svc *appcouncil.Service, repo domain.Repository, monitor *health.Monitor, apiKeys map[string]string) http.Handler {
	r := &Router{svc: svc, repo: repo, monitor: monitor}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if len(apiKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(apiKeys))
	}

	mux.Get("/health", middleware.HealthHandler(nil, monitor))
	mux.Get("/metrics", middleware.MetricsHandler(monitor))

	mux.Route("/v1/{submitter}", func(rt chi.Router) {
		rt.Post("/letters", r.wrap(r.handleSubmit))
		rt.Get("/submissions/{id}", r.wrap(r.handleGetSubmission))
		rt.Get("/decisions/{id}", r.wrap(r.handleGetDecision))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrRateLimited):
				middleware.IncrementLettersRejected()
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			case errors.Is(err, domain.ErrQueueFull):
				middleware.IncrementLettersRejected()
				http.Error(w, "submission queue is full, please try again later", http.StatusServiceUnavailable)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// POST /v1/{submitter}/letters
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	submitter := chi.URLParam(req, "submitter")
	if auth := middleware.GetSubmitterFromContext(req.Context()); auth != "" && auth != submitter {
		http.Error(w, "submitter does not match API key", http.StatusForbidden)
		return nil
	}
	if err := middleware.ValidateSubmitterID(submitter); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	var body struct {
		Symbol   string         `json:"symbol"`
		Thesis   string         `json:"thesis"`
		Source   string         `json:"source"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return nil
	}
	if err := middleware.ValidateSymbol(body.Symbol); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	if err := middleware.ValidateThesis(body.Thesis); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	letter := domain.Letter{
		Symbol:      body.Symbol,
		Thesis:      middleware.SanitizeString(body.Thesis),
		SubmitterID: submitter,
		Source:      body.Source,
		Metadata:    body.Metadata,
	}
	id, err := r.svc.Submit(req.Context(), letter)
	if err != nil {
		return err
	}
	middleware.IncrementLettersAccepted()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(map[string]string{
		"submission_id": string(id),
		"status":        string(domain.StatusPending),
	})
}

// GET /v1/{submitter}/submissions/{id}
func (r *Router) handleGetSubmission(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSubmissionID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	sub, err := r.repo.Get(req.Context(), domain.SubmissionID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(sub)
}

// GET /v1/{submitter}/decisions/{id}
func (r *Router) handleGetDecision(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSubmissionID(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	decision, err := r.repo.GetDecision(req.Context(), domain.SubmissionID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(decision)
}
