package knowledge

import (
	"sync/atomic"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/ports"
)

// Bundle ties the lexical snapshot and the semantic index together. Matchers
// read through it; only the ingestion pipeline writes through it.
type Bundle struct {
	lexical atomic.Pointer[Snapshot]
	vectors ports.VectorIndex
}

func NewBundle(docs []domain.Document, vectors ports.VectorIndex) *Bundle {
	b := &Bundle{vectors: vectors}
	b.lexical.Store(Build(docs))
	return b
}

// Lexical returns the current snapshot.
func (b *Bundle) Lexical() *Snapshot {
	return b.lexical.Load()
}

func (b *Bundle) Vectors() ports.VectorIndex {
	return b.vectors
}

// Extend publishes a snapshot with docs appended and returns the position of
// the first appended document. Callers must serialize Extend. One call costs
// O(len(docs) + sqrt(n)) amortized over a store of n documents.
func (b *Bundle) Extend(docs []domain.Document) int {
	current := b.lexical.Load()
	start := current.Len()
	if len(docs) == 0 {
		return start
	}
	b.lexical.Store(current.extend(docs))
	return start
}

// Stats reports the sizes of every index in the bundle as seen by the current
// snapshot. Vectors are added before their documents are published, so the
// snapshot is read first and the semantic counts are bounded by it.
func (b *Bundle) Stats() domain.IndexStats {
	snap := b.Lexical()
	stats := domain.IndexStats{
		Documents:       snap.Len(),
		KeywordsIndexed: snap.KeywordCount(),
	}
	if b.vectors != nil {
		stats.Vectors = min(b.vectors.Len(), stats.Documents)
		for _, pos := range b.vectors.Missing() {
			if pos >= stats.Documents {
				break
			}
			stats.MissingVectors++
		}
	}
	return stats
}
