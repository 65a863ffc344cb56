package ports

import (
	"context"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

// Retriever is the inbound contract for question answering.
type Retriever interface {
	Retrieve(ctx context.Context, question string) domain.Result
	Debug(ctx context.Context, question string) domain.DebugReport
}

// KnowledgeIngestor is the single writer of the index bundle.
type KnowledgeIngestor interface {
	Append(ctx context.Context, docs []domain.Document) (int, error)
	Reindex(ctx context.Context) (int, error)
}

// KnowledgeReader is the read model for health and corpus statistics.
type KnowledgeReader interface {
	Health() domain.IndexStats
	Knowledge(samples int) domain.KnowledgeStats
}
