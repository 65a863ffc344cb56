package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/config"
	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/knowledge"
	"github.com/kbretrieval/knowledge-service/internal/core/ports"
	"github.com/kbretrieval/knowledge-service/internal/core/usecase"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/corpus/jsonfile"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/embedding/ollama"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/embedding/openai"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/queue/nats"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/repository/postgres"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/vector/memory"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/vector/qdrant"
	"github.com/kbretrieval/knowledge-service/internal/observability/metrics"
)

const (
	ServiceName      = "knowledge-service"
	feedBatchTimeout = 10 * time.Minute
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Bundle       *knowledge.Bundle
	RetrievalUC  *usecase.RetrievalUseCase
	IngestUC     *usecase.IngestUseCase
	StatsUC      *usecase.StatsUseCase
	Interactions ports.InteractionLog
	Feed         ports.DocumentFeed

	feedMetrics *metrics.FeedMetrics
	closeFns    []func()
}

// New loads the corpus, builds the index bundle and wires every tier. A
// missing or corrupt corpus is fatal; optional collaborators that fail to
// start are logged and left out.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewHTTPServerMetrics(ServiceName),
	}
	executor := resilience.NewExecutor(cfg.Resilience).WithStateObserver(app.Metrics.ObserveBreaker)

	store := jsonfile.New(cfg.KnowledgePath)
	docs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge corpus %s: %w", cfg.KnowledgePath, err)
	}
	slog.Info("knowledge_corpus_loaded", "path", cfg.KnowledgePath, "documents", len(docs))

	embedder, err := newEmbedder(cfg, executor)
	if err != nil {
		return nil, err
	}
	vectors, err := app.newVectorIndex(ctx, cfg, embedder)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Bundle = knowledge.NewBundle(docs, vectors)
	app.IngestUC = usecase.NewIngestUseCase(store, app.Bundle, embedder, usecase.IngestOptions{
		FlushEvery: cfg.IngestFlushEvery,
		EmbedBatch: cfg.EmbedBatchSize,
		Observer:   app.Metrics,
	})
	if err := app.IngestUC.Warm(ctx); err != nil {
		slog.Warn("semantic_index_warm_failed", "error", err)
	}
	app.StatsUC = usecase.NewStatsUseCase(app.Bundle)

	tiers := usecase.LocalTiers(app.Bundle, embedder, cfg.SemanticTopK)
	if cfg.LiveFallbackEnabled {
		live, err := liveProviders(cfg, executor)
		if err != nil {
			app.Close()
			return nil, err
		}
		tiers = append(tiers, usecase.LiveTiers(live, app.IngestUC)...)
	}
	app.RetrievalUC = usecase.NewRetrievalUseCase(tiers, app.Metrics)

	app.openInteractionLog(ctx, cfg)
	app.openFeed(cfg, executor)

	return app, nil
}

func newEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbeddingTimeout, executor)), nil
	case "openai":
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbedModel, cfg.EmbeddingTimeout), nil
	case "none", "":
		slog.Warn("semantic_search_disabled", "reason", "EMBEDDING_PROVIDER=none")
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", cfg.EmbeddingProvider)
	}
}

func (a *App) newVectorIndex(ctx context.Context, cfg config.Config, embedder ports.Embedder) (ports.VectorIndex, error) {
	if embedder == nil {
		return nil, nil
	}
	switch cfg.VectorBackend {
	case "memory", "":
		return memory.New(), nil
	case "qdrant":
		index, err := qdrant.Open(ctx, qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			VectorSize: cfg.QdrantVectorSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open qdrant index: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = index.Close() })
		return index, nil
	default:
		return nil, fmt.Errorf("unsupported VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

func (a *App) openInteractionLog(ctx context.Context, cfg config.Config) {
	if cfg.PostgresDSN == "" {
		return
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Warn("interaction_log_disabled", "error", err)
		return
	}
	repo := postgres.NewInteractionRepository(db)
	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repo.EnsureSchema(schemaCtx); err != nil {
		slog.Warn("interaction_log_disabled", "error", err)
		closeDB(db)
		return
	}
	a.Interactions = repo
	a.closeFns = append(a.closeFns, func() { closeDB(db) })
}

func (a *App) openFeed(cfg config.Config, executor *resilience.Executor) {
	if cfg.NATSURL == "" {
		return
	}
	feed, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               ServiceName,
		ResilienceExecutor: executor,
	})
	if err != nil {
		slog.Warn("document_feed_disabled", "error", err)
		return
	}
	a.Feed = feed
	a.feedMetrics = metrics.NewFeedMetrics(ServiceName, a.Metrics.Registry())
	a.closeFns = append(a.closeFns, feed.Close)
}

// ConsumeFeed appends inbound document batches until ctx is done. It returns
// immediately when no feed is configured.
func (a *App) ConsumeFeed(ctx context.Context) error {
	if a.Feed == nil {
		return nil
	}
	slog.Info("document_feed_subscribed", "subject", a.Config.NATSSubject)
	return a.Feed.SubscribeDocuments(ctx, func(msgCtx context.Context, docs []domain.Document) error {
		batchCtx, cancel := context.WithTimeout(msgCtx, feedBatchTimeout)
		defer cancel()

		start := time.Now()
		a.feedMetrics.StartBatch(len(docs))
		added, err := a.IngestUC.Append(batchCtx, docs)
		a.feedMetrics.FinishBatch(time.Since(start), err)
		if err != nil {
			return fmt.Errorf("append feed batch: %w", err)
		}
		slog.Info("document_feed_batch", "received", len(docs), "added", added)
		return nil
	})
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}
