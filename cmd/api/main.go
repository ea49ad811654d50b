package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/alphacouncil/internal/application"
	appcouncil "github.com/bryanwahyu/alphacouncil/internal/application/council"
	"github.com/bryanwahyu/alphacouncil/internal/config"
	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/health"
	aiopenai "github.com/bryanwahyu/alphacouncil/internal/infra/ai/openai"
	"github.com/bryanwahyu/alphacouncil/internal/infra/ai/prompt"
	mysqlp "github.com/bryanwahyu/alphacouncil/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/alphacouncil/internal/infra/db/postgres"
	"github.com/bryanwahyu/alphacouncil/internal/infra/dissemination"
	"github.com/bryanwahyu/alphacouncil/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/alphacouncil/internal/infra/storage"
	"github.com/bryanwahyu/alphacouncil/internal/infra/transport"
	"github.com/bryanwahyu/alphacouncil/internal/queue"
	"github.com/bryanwahyu/alphacouncil/internal/ratelimit"
	"github.com/bryanwahyu/alphacouncil/internal/runner"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect DB sesuai driver
	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	// init publisher (minio + webhook), optional
	var publisher domain.Publisher
	if cfg.Council.Disseminate {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		publisher = dissemination.NewPublisher(store, cfg.Council.AnnounceWebhook)
	}

	// init transport
	tp, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("transport init error: %v", err)
	}

	monitor := health.NewMonitor()
	limiter := ratelimit.New(cfg.Council.RateLimitMax, cfg.RateLimitWindow())
	q := queue.New(cfg.Council.QueueCapacity, limiter, monitor)

	// init service
	svc := &appcouncil.Service{
		Transport:   tp,
		Repo:        repo,
		Publisher:   publisher,
		Queue:       q,
		Monitor:     monitor,
		Clock:       application.SystemClock{},
		Timeout:     cfg.EvaluatorTimeout(),
		Threshold:   cfg.Council.PassThreshold,
		Disseminate: cfg.Council.Disseminate,
	}

	// drain loop: satu consumer, berhenti saat shutdown
	drainCtx, stopDrain := context.WithCancel(ctx)
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		if err := svc.Run(drainCtx); err != nil && err != context.Canceled {
			log.Printf("drain loop error: %v", err)
		}
	}()

	mux := httpserver.NewRouter(svc, repo, monitor, cfg.Server.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	stopDrain()
	select {
	case <-drainDone:
	case <-time.After(10 * time.Second):
		log.Println("drain loop did not stop in time")
	}
}

// openRepository connects to the configured database and returns the handle
// plus the matching repository.
func openRepository(ctx context.Context, cfg *config.Config) (*sql.DB, domain.Repository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return db, postgresp.NewSubmissionRepository(db), nil
	case "mysql", "":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return db, mysqlp.NewSubmissionRepository(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// buildTransport wires the evaluator bench: in-process openai evaluators
// behind init-once runners, or HTTP endpoints in remote mode.
func buildTransport(cfg *config.Config) (domain.Transport, error) {
	switch cfg.Transport.Mode {
	case "remote":
		order := []string{"technical", "sentiment", "macro"}
		return transport.NewRemote(cfg.Transport.Endpoints, order), nil
	case "local", "":
		profiles := []prompt.Profile{prompt.Technical(), prompt.Sentiment(), prompt.Macro()}
		runners := make([]*runner.Runner, 0, len(profiles))
		for _, p := range profiles {
			p := p
			runners = append(runners, runner.New(p.ID, func(ctx context.Context) (domain.Evaluator, error) {
				return aiopenai.NewEvaluator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, p), nil
			}))
		}
		return transport.NewLocal(runners), nil
	default:
		return nil, fmt.Errorf("unsupported transport mode %q", cfg.Transport.Mode)
	}
}
