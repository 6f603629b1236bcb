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

	httpadapter "github.com/sisirapr/doc-qa-system/internal/adapters/http"
	"github.com/sisirapr/doc-qa-system/internal/bootstrap"
	"github.com/sisirapr/doc-qa-system/internal/config"
	"github.com/sisirapr/doc-qa-system/internal/observability/logging"
	"github.com/sisirapr/doc-qa-system/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Resilience:        m,
		Query:             m,
		Ingest:            m,
		EmbeddingFallback: m.ObserveEmbeddingFallback,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.Options{
		DefaultLimit:    cfg.RAGTopK,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		RateLimitRPS:    cfg.APIRateLimitRPS,
		RateLimitBurst:  cfg.APIRateLimitBurst,
		MaxInFlight:     cfg.APIMaxInFlight,
		BackpressureTTL: cfg.APIBackpressureWait,
	}, httpadapter.Services{
		Ingestor:  app.IngestUC,
		Query:     app.QueryUC,
		Searcher:  app.SearchUC,
		Admin:     app.AdminUC,
		Documents: app.Registry,
		Importer:  app.ImportUC,
	}).WithMetrics(m)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr, "async_import", app.ImportUC.Async())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
