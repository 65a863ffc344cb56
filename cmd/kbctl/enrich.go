package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/knowledge"
	"github.com/kbretrieval/knowledge-service/internal/core/usecase"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/corpus/jsonfile"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/enrich"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/wikipedia"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/queue/nats"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

var defaultTopics = []string{"Artificial Intelligence", "Quantum Computing", "Renewable Energy"}

var enrichFlags struct {
	topics   []string
	depth    int
	max      int
	maxLinks int
	publish  bool
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Crawl Wikipedia from seed topics and add page summaries",
	Long: `Walks Wikipedia breadth-first from the given topics, following at most
--links links per page down to --depth, and stores cleaned page summaries.

Documents are appended to the corpus file directly, or published to the
NATS document feed with --publish so a running API ingests them. Do not
append directly while the API owns the corpus; use --publish instead.`,
	RunE: runEnrich,
}

func init() {
	f := enrichCmd.Flags()
	f.StringSliceVar(&enrichFlags.topics, "topic", defaultTopics, "seed topic (repeatable)")
	f.IntVar(&enrichFlags.depth, "depth", enrich.DefaultDepth, "link depth below the seed topics")
	f.IntVar(&enrichFlags.max, "max", enrich.DefaultMaxDocuments, "maximum documents to collect")
	f.IntVar(&enrichFlags.maxLinks, "links", enrich.DefaultMaxLinks, "links followed per page")
	f.BoolVar(&enrichFlags.publish, "publish", false, "publish to the NATS feed instead of writing the corpus")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	executor := resilience.NewExecutor(cfg.Resilience)
	pc := cfg.Provider("wikipedia")
	client := wikipedia.NewClient(providers.Options{
		Timeout:   pc.Timeout,
		RPS:       pc.RPS,
		UserAgent: cfg.HTTPUserAgent,
		Executor:  executor,
	})

	emit, closeFn, err := enrichSink(ctx, executor)
	if err != nil {
		return err
	}
	defer closeFn()

	crawler := enrich.NewCrawler(client, enrich.Options{
		Depth:        enrichFlags.depth,
		MaxDocuments: enrichFlags.max,
		MaxLinks:     enrichFlags.maxLinks,
	})
	stats, err := crawler.Crawl(ctx, enrichFlags.topics, emit)
	fmt.Fprintf(cmd.OutOrStdout(), "visited=%d collected=%d missing=%d failed=%d\n",
		stats.Visited, stats.Collected, stats.Missing, stats.Failed)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}

// enrichSink returns where crawled batches go: the NATS feed, or the corpus
// file through the ingestion pipeline with no embedder attached.
func enrichSink(ctx context.Context, executor *resilience.Executor) (func(context.Context, []domain.Document) error, func(), error) {
	if enrichFlags.publish {
		if cfg.NATSURL == "" {
			return nil, nil, fmt.Errorf("--publish requires NATS_URL")
		}
		feed, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Name:               "kbctl",
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect document feed: %w", err)
		}
		return feed.PublishDocuments, feed.Close, nil
	}

	store := jsonfile.New(corpusPath)
	docs, err := store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}
	ingest := usecase.NewIngestUseCase(store, knowledge.NewBundle(docs, nil), nil, usecase.IngestOptions{
		FlushEvery: cfg.IngestFlushEvery,
	})
	emit := func(ctx context.Context, batch []domain.Document) error {
		_, err := ingest.Append(ctx, batch)
		return err
	}
	return emit, func() {}, nil
}
