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

	"github.com/joho/godotenv"

	"github.com/sisirapr/doc-qa-system/internal/bootstrap"
	"github.com/sisirapr/doc-qa-system/internal/config"
	"github.com/sisirapr/doc-qa-system/internal/observability/logging"
	"github.com/sisirapr/doc-qa-system/internal/observability/metrics"
)

const importTimeout = 5 * time.Minute

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	// Imports written to process-local stores would never reach the API.
	if missing := cfg.ProcessLocalStores(); len(missing) > 0 {
		logger.Error("worker_requires_shared_stores", "missing", missing)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Resilience: m,
		QueueLag:   m.ObserveQueueLag,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeImportRequested(ctx, func(handlerCtx context.Context, fileID string) error {
		importCtx, cancel := context.WithTimeout(handlerCtx, importTimeout)
		defer cancel()

		start := time.Now()
		m.StartImport()
		res, err := app.ImportUC.ImportByID(importCtx, fileID)
		m.FinishImport(time.Since(start), err)
		if err != nil {
			return err
		}
		logger.Info("import_completed",
			"file_id", fileID,
			"status", res.Status,
			"stored_chunks", res.StoredChunks,
			"total_chunks", res.TotalChunks,
		)
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
