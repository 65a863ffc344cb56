package ports

import (
	"context"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

// CorpusStore persists the ordered document corpus.
type CorpusStore interface {
	Load(ctx context.Context) ([]domain.Document, error)
	Append(ctx context.Context, docs []domain.Document) error
}

// Embedder builds vectors for document texts and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex maps store positions to vectors and answers nearest-neighbour
// queries by inner product over unit-normalized vectors.
type VectorIndex interface {
	// Add assigns vectors to positions start..start+len(vectors)-1. start must
	// equal Len. A nil vector reserves its position as a placeholder.
	Add(ctx context.Context, start int, vectors [][]float32) error
	// Set fills the vector at an already reserved position.
	Set(ctx context.Context, position int, vector []float32) error
	Nearest(ctx context.Context, query []float32, k int) ([]domain.Neighbor, error)
	Len() int
	// Missing lists placeholder positions in ascending order.
	Missing() []int
	Reset(ctx context.Context) error
}

// LiveProvider searches one external source and hydrates the best hit into a
// document. ok is false when the source has nothing relevant.
type LiveProvider interface {
	Method() domain.Method
	Lookup(ctx context.Context, question string) (hit domain.LiveHit, ok bool, err error)
}

// DocumentFeed carries batches of documents between processes.
type DocumentFeed interface {
	PublishDocuments(ctx context.Context, docs []domain.Document) error
	SubscribeDocuments(ctx context.Context, handler func(context.Context, []domain.Document) error) error
}

// InteractionLog records answered questions.
type InteractionLog interface {
	Record(ctx context.Context, interaction domain.Interaction) error
}
