package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"research-agent/internal/app"
	"research-agent/internal/config"
	"research-agent/internal/http"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about investment research reports with cited sources.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Research Agent API
//   description: |
//     Retrieval-augmented question answering over investment research reports
//     (house views, SEC filings, FOMC minutes, bank outlooks). Answers cite the
//     report and page they are drawn from.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()

	if err := a.Prepare(ctx); err != nil {
		log.Fatalf("Failed to prepare index: %v", err)
	}

	router := http.NewRouter(&http.Deps{
		ChatService: a.Chat,
		Ingester:    a.Pipeline,
		VectorStore: a.Store,
		Models:      a.LLM,
		Collection:  cfg.QdrantCollection,
		ReportsDir:  cfg.ReportsDir,
		Metrics:     a.Metrics,
	})

	// Ingest new or changed reports in the background after the router is ready
	go func() {
		slog.Info("Starting background ingestion", "dir", cfg.ReportsDir)
		if _, err := a.Pipeline.IngestDir(ctx, cfg.ReportsDir, false); err != nil {
			slog.Error("Ingestion completed with errors", "error", err)
		} else {
			slog.Info("Ingestion completed successfully")
		}
	}()

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", server.Addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
	slog.Info("API server stopped")
}
