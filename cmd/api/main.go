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

	httpadapter "github.com/kbretrieval/knowledge-service/internal/adapters/http"
	mcpadapter "github.com/kbretrieval/knowledge-service/internal/adapters/mcp"
	"github.com/kbretrieval/knowledge-service/internal/bootstrap"
	"github.com/kbretrieval/knowledge-service/internal/config"
	"github.com/kbretrieval/knowledge-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(bootstrap.ServiceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	deps := httpadapter.Dependencies{
		Retriever:    app.RetrievalUC,
		Reader:       app.StatsUC,
		Ingestor:     app.IngestUC,
		Interactions: app.Interactions,
		Metrics:      app.Metrics,
	}
	if cfg.MCPEnabled {
		deps.MCP = mcpadapter.NewServer(app.RetrievalUC).HTTPHandler()
	}
	router := httpadapter.NewRouter(cfg, deps).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		if err := app.ConsumeFeed(ctx); err != nil {
			slog.Error("document_feed_failed", "error", err)
		}
	}()

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
	select {
	case <-feedDone:
	case <-shutdownCtx.Done():
		slog.Warn("document_feed_drain_timeout")
	}
}
