package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
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
	minioStore "github.com/bryanwahyu/alphacouncil/internal/infra/storage"
	"github.com/bryanwahyu/alphacouncil/internal/infra/transport"
	"github.com/bryanwahyu/alphacouncil/internal/runner"
)

// The worker drains durable pending rows instead of the in-memory queue,
// running the same pipeline the API's drain loop runs. Safe to run alongside
// the API or on its own: every consumer wins the pending -> processing claim
// inside the pipeline before doing any work, so a row is never run twice.
func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

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

	tp, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("transport init error: %v", err)
	}

	svc := &appcouncil.Service{
		Transport:   tp,
		Repo:        repo,
		Publisher:   publisher,
		Monitor:     health.NewMonitor(),
		Clock:       application.SystemClock{},
		Timeout:     cfg.EvaluatorTimeout(),
		Threshold:   cfg.Council.PassThreshold,
		Disseminate: cfg.Council.Disseminate,
	}

	// stop on SIGTERM
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Println("worker stopping...")
		cancel()
	}()

	log.Printf("worker polling every %s", cfg.WorkerPollInterval())
	ticker := time.NewTicker(cfg.WorkerPollInterval())
	defer ticker.Stop()

	for {
		processed, err := runOnce(ctx, svc, repo)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("worker poll error: %v", err)
		}
		if processed {
			// Keep draining back-to-back while rows are waiting.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOnce hands at most one pending submission to the pipeline, which claims
// it before doing any work. It reports whether a row was seen so the caller
// can skip the poll delay.
func runOnce(ctx context.Context, svc *appcouncil.Service, repo domain.Repository) (bool, error) {
	sub, err := repo.NextPending(ctx)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	task := domain.Task{
		SubmissionID: sub.ID,
		Letter:       sub.Letter,
		EnqueuedAt:   sub.CreatedAt,
	}
	if _, err := svc.Process(ctx, task); err != nil {
		log.Printf("pipeline failed submission=%s err=%v", sub.ID, err)
	}
	return true, nil
}

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
