package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/sisirapr/doc-qa-system/internal/adapters/mcp"
	"github.com/sisirapr/doc-qa-system/internal/bootstrap"
	"github.com/sisirapr/doc-qa-system/internal/config"
	"github.com/sisirapr/doc-qa-system/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.QdrantURL == "" {
		logger.Error("mcp_requires_shared_index", "hint", "set QDRANT_URL")
		os.Exit(1)
	}
	if cfg.PostgresDSN == "" {
		logger.Warn("registry_process_local", "hint", "list_documents only sees this process; set POSTGRES_DSN")
	}

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Observers{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.SearchUC, app.QueryUC, app.Registry)
	if err := server.ServeStdio(mcpadapter.NewServer(cfg.MCPServerName, version, tools)); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
