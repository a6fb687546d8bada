package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftline-labs/draftline-go/internal/collab"
	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/pipeline"
	pgrepo "github.com/draftline-labs/draftline-go/internal/repo/postgres"
	"github.com/draftline-labs/draftline-go/internal/platform/auditlog"
	"github.com/draftline-labs/draftline-go/internal/platform/env"
	"github.com/draftline-labs/draftline-go/internal/platform/httpserver"
	"github.com/draftline-labs/draftline-go/internal/platform/objectstore"
	"github.com/draftline-labs/draftline-go/internal/platform/postgres"
	"github.com/draftline-labs/draftline-go/internal/saga"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("ORCHESTRATOR_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("ORCHESTRATOR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxConcurrentRuns, err := env.Int("ORCHESTRATOR_MAX_CONCURRENT_RUNS", 4)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	profile, err := pipeline.LoadProfile(env.String("ORCHESTRATOR_PIPELINE_PROFILE", ""))
	if err != nil {
		logger.Error("invalid pipeline profile", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	minioClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("invalid object store client", "error", err)
		os.Exit(2)
	}
	if err := objectstore.EnsureBucket(ctx, minioClient, storeCfg); err != nil {
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	artifacts, err := objectstore.NewArtifactBucket(minioClient, storeCfg.BucketArtifacts)
	if err != nil {
		logger.Error("invalid artifact bucket", "error", err)
		os.Exit(2)
	}

	stores := pipeline.Stores{
		Briefs:     pgrepo.NewBriefStore(db),
		Strategies: pgrepo.NewStrategyStore(db),
		Drafts:     pgrepo.NewDraftStore(db),
		Quality:    pgrepo.NewQualityStore(db),
		Packages:   pgrepo.NewPackageStore(db),
	}
	registry, err := pipeline.NewRegistry(profile, stores, collab.NewHouseStudio().Collaborators(), artifacts)
	if err != nil {
		logger.Error("invalid step registry", "error", err)
		os.Exit(2)
	}

	runStore := pgrepo.NewWorkflowRunStore(db)
	claimStore := pgrepo.NewClaimStore(db)

	audit := func(ctx context.Context, action string, run domain.WorkflowRun, payload domain.Metadata) error {
		auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
		defer cancel()
		_, err := auditlog.Insert(auditCtx, db, auditlog.Event{
			OccurredAt: time.Now().UTC(),
			Actor:      "orchestrator",
			Action:     action,
			RunID:      run.ID.String(),
			BriefRef:   run.BriefRef,
			Payload:    payload,
		})
		return err
	}

	coordinator, err := saga.NewCoordinator(registry, runStore, claimStore, logger, saga.WithAudit(audit))
	if err != nil {
		logger.Error("invalid coordinator", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("orchestrator"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"orchestrator",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "objectstore",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBucket(checkCtx, minioClient, storeCfg)
				},
			},
		),
	)

	api := newOrchestratorAPI(logger, runStore, coordinator, context.Background(), maxConcurrentRuns)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "orchestrator",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "orchestrator", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	// Accepted runs keep executing after the listener stops; let them reach
	// a terminal status before the process exits.
	api.wait()
}
