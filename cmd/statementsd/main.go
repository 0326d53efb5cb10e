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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/finparse/statements/constants"
	"github.com/finparse/statements/internal/api"
	"github.com/finparse/statements/internal/batch"
	"github.com/finparse/statements/internal/common"
	"github.com/finparse/statements/internal/llm/openai"
	"github.com/finparse/statements/internal/repository"
	"github.com/finparse/statements/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := repository.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	repo := repository.NewExtractionRepository(db, logger)

	store, err := storage.NewLocalStore(cfg.Server.UploadDir)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	logger.Info("extraction client initialized", "model", cfg.LLM.Model)

	orch := batch.NewOrchestrator(extractor, logger,
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithJobTimeout(cfg.Batch.JobTimeout),
		batch.WithStatusFunc(func(job *batch.FileJob) {
			// in-flight transitions only; terminal states land via onDone
			if job.Status != constants.StatusProcessing {
				return
			}
			if err := repo.SetStatus(context.Background(), job.ID, job.Status); err != nil {
				logger.Warn("failed to record job status", "job_id", job.ID, "error", err)
			}
		}),
	)

	onDone := func(batchID uuid.UUID, jobs []*batch.FileJob, sum batch.Summary) {
		bg := context.Background()
		for _, job := range jobs {
			if err := repo.Finish(bg, job.ID, job.Status, job.Err, job.Result); err != nil {
				logger.Error("failed to record job result", "job_id", job.ID, "error", err)
			}
		}
		if sum.AuthFailure {
			logger.Error("batch failed authentication; check OPENAI_API_KEY", "batch_id", batchID)
		}
	}
	queue := batch.NewQueue(orch, onDone, logger,
		batch.WithQueueSize(cfg.Batch.QueueSize),
	)

	e := echo.New()
	e.HideBanner = true
	server := api.NewServer(store, repo, queue, orch, cfg.Server.MaxUploadMB, logger)
	api.RegisterRoutes(e, server)

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stop intake first so no handler acknowledges a batch the queue
	// would never run, then drain whatever was already accepted.
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	queue.Shutdown(shutdownCtx)
}
