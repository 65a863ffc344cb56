package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/knowledge"
	"github.com/kbretrieval/knowledge-service/internal/core/ports"
)

const (
	DefaultFlushEvery   = 5000
	DefaultEmbedBatch   = 64
	DefaultEmbedTimeout = 2 * time.Minute
)

const (
	IngestOutcomeAdded     = "added"
	IngestOutcomeDuplicate = "duplicate"
	IngestOutcomeInvalid   = "invalid"
	IngestOutcomeDegraded  = "degraded"
)

// IngestObserver receives ingestion counters.
type IngestObserver interface {
	ObserveIngest(outcome string, count int)
	ObserveCorpusSize(documents int)
}

type IngestOptions struct {
	FlushEvery   int
	EmbedBatch   int
	EmbedTimeout time.Duration
	Observer     IngestObserver
}

// IngestUseCase is the single writer of the corpus and the index bundle.
// Documents are persisted first; the semantic index and then the lexical
// snapshot are updated only after the corpus write succeeded.
type IngestUseCase struct {
	mu       sync.Mutex
	corpus   ports.CorpusStore
	bundle   *knowledge.Bundle
	embedder ports.Embedder
	opts     IngestOptions
}

func NewIngestUseCase(
	corpus ports.CorpusStore,
	bundle *knowledge.Bundle,
	embedder ports.Embedder,
	opts IngestOptions,
) *IngestUseCase {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = DefaultEmbedBatch
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	return &IngestUseCase{
		corpus:   corpus,
		bundle:   bundle,
		embedder: embedder,
		opts:     opts,
	}
}

// Append ingests docs and returns how many were new. Documents with empty
// text or source and documents whose trimmed text is already stored are
// skipped. On a persistence error the count of documents written by earlier
// flushes is returned with the error.
func (uc *IngestUseCase) Append(ctx context.Context, docs []domain.Document) (int, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	snap := uc.bundle.Lexical()
	pending := make(map[string]struct{})
	batch := make([]domain.Document, 0, min(len(docs), uc.opts.FlushEvery))
	added, duplicates, invalid := 0, 0, 0

	defer func() {
		uc.observe(IngestOutcomeDuplicate, duplicates)
		uc.observe(IngestOutcomeInvalid, invalid)
	}()

	for _, doc := range docs {
		if !doc.Valid() {
			invalid++
			continue
		}
		hash := domain.ContentHash(doc.Text)
		if _, ok := pending[hash]; ok || snap.Seen(hash) {
			duplicates++
			continue
		}
		pending[hash] = struct{}{}
		batch = append(batch, doc)

		if len(batch) >= uc.opts.FlushEvery {
			if err := uc.flush(ctx, batch); err != nil {
				return added, err
			}
			added += len(batch)
			batch = batch[:0:0]
		}
	}

	if len(batch) > 0 {
		if err := uc.flush(ctx, batch); err != nil {
			return added, err
		}
		added += len(batch)
	}
	return added, nil
}

func (uc *IngestUseCase) flush(ctx context.Context, batch []domain.Document) error {
	if err := uc.corpus.Append(context.WithoutCancel(ctx), batch); err != nil {
		return fmt.Errorf("persist %d documents: %w", len(batch), err)
	}

	// Vectors go in before the snapshot is published, so a reader never sees
	// a document the semantic index has not reserved a position for.
	start := uc.bundle.Lexical().Len()
	if err := uc.indexVectors(ctx, start, batch); err != nil {
		uc.observe(IngestOutcomeDegraded, len(batch))
		slog.Warn("ingest_index_degraded",
			"start", start,
			"count", len(batch),
			"error", err,
		)
	}

	uc.bundle.Extend(batch)
	uc.observe(IngestOutcomeAdded, len(batch))
	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveCorpusSize(start + len(batch))
	}
	return nil
}

// indexVectors embeds batch and appends it to the semantic index at start.
// Positions that could not be embedded are reserved as placeholders so the
// index length keeps matching the store.
func (uc *IngestUseCase) indexVectors(ctx context.Context, start int, batch []domain.Document) error {
	vectors := uc.bundle.Vectors()
	if vectors == nil {
		return nil
	}

	embedded := make([][]float32, len(batch))
	var embedErr error
	if uc.embedder != nil {
		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = doc.Text
		}
		embedded, embedErr = uc.embedAll(ctx, texts)
	}

	if err := vectors.Add(context.WithoutCancel(ctx), start, embedded); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return embedErr
}

// embedAll embeds texts in batches. A failed batch leaves nil vectors and the
// first error is returned alongside the partial result.
func (uc *IngestUseCase) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.EmbedTimeout)
	defer cancel()

	out := make([][]float32, len(texts))
	var firstErr error
	for lo := 0; lo < len(texts); lo += uc.opts.EmbedBatch {
		hi := min(lo+uc.opts.EmbedBatch, len(texts))
		vecs, err := uc.embedder.Embed(ctx, texts[lo:hi])
		if err == nil && len(vecs) != hi-lo {
			err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), hi-lo)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("embed texts %d..%d: %w", lo, hi-1, err)
			}
			continue
		}
		copy(out[lo:hi], vecs)
	}
	return out, firstErr
}

// Warm brings the semantic index in line with the loaded store. An index that
// already holds one entry per document is kept; otherwise it is rebuilt.
func (uc *IngestUseCase) Warm(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	vectors := uc.bundle.Vectors()
	snap := uc.bundle.Lexical()
	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveCorpusSize(snap.Len())
	}
	if vectors == nil {
		return nil
	}
	if vectors.Len() == snap.Len() {
		slog.Info("semantic_index_reused", "vectors", vectors.Len(), "missing", len(vectors.Missing()))
		return nil
	}
	if vectors.Len() != 0 {
		slog.Warn("semantic_index_mismatch", "vectors", vectors.Len(), "documents", snap.Len())
		if err := vectors.Reset(ctx); err != nil {
			return fmt.Errorf("reset semantic index: %w", err)
		}
	}

	docs := snap.Documents()
	for lo := 0; lo < len(docs); lo += uc.opts.FlushEvery {
		hi := min(lo+uc.opts.FlushEvery, len(docs))
		if err := uc.indexVectors(ctx, lo, docs[lo:hi]); err != nil {
			slog.Warn("ingest_index_degraded", "start", lo, "count", hi-lo, "error", err)
		}
	}
	if vectors.Len() != snap.Len() {
		return fmt.Errorf("semantic index holds %d entries for %d documents", vectors.Len(), snap.Len())
	}
	slog.Info("semantic_index_built", "documents", snap.Len(), "missing", len(vectors.Missing()))
	return nil
}

// Reindex embeds every placeholder position and returns how many were filled.
func (uc *IngestUseCase) Reindex(ctx context.Context) (int, error) {
	if uc.embedder == nil {
		return 0, domain.WrapError(domain.ErrProviderUnavailable, "reindex", fmt.Errorf("no embedder configured"))
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	vectors := uc.bundle.Vectors()
	if vectors == nil {
		return 0, nil
	}
	missing := vectors.Missing()
	snap := uc.bundle.Lexical()

	filled := 0
	for lo := 0; lo < len(missing); lo += uc.opts.EmbedBatch {
		hi := min(lo+uc.opts.EmbedBatch, len(missing))
		positions := missing[lo:hi]
		texts := snap.Texts(positions)
		if len(texts) != len(positions) {
			return filled, fmt.Errorf("placeholder positions %v outside store of %d documents", positions, snap.Len())
		}

		vecs, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return filled, fmt.Errorf("embed placeholders: %w", err)
		}
		if len(vecs) != len(positions) {
			return filled, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(positions))
		}
		for i, pos := range positions {
			if err := vectors.Set(ctx, pos, vecs[i]); err != nil {
				return filled, fmt.Errorf("set vector %d: %w", pos, err)
			}
			filled++
		}
	}
	if filled > 0 {
		slog.Info("semantic_index_reindexed", "filled", filled)
	}
	return filled, nil
}

func (uc *IngestUseCase) observe(outcome string, count int) {
	if uc.opts.Observer != nil && count > 0 {
		uc.opts.Observer.ObserveIngest(outcome, count)
	}
}

// SourcePrefix groups a source tag for corpus statistics: the host of a URL,
// otherwise the text before the first '-' or ':'.
func SourcePrefix(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	if rest, ok := strings.CutPrefix(s, "https://"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "http://"); ok {
		s = rest
	} else if i := strings.IndexAny(s, "-:"); i > 0 {
		return s[:i]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "unknown"
	}
	return s
}
