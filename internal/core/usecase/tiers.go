package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/knowledge"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/core/ports"
)

const (
	ExactSourceScore = 1.0
	ExactTopicScore  = 0.95

	KeywordMinCoverage  = 0.5
	KeywordCoverageGain = 1.5
	KeywordHighScore    = 0.7

	SemanticMinScore  = 0.6
	SemanticHighScore = 0.75
	DefaultSemanticK  = 5

	// AcceptThreshold gates keyword and semantic results in the orchestrator.
	AcceptThreshold = 0.6
)

const (
	TierExact    = "exact"
	TierKeyword  = "keyword"
	TierSemantic = "semantic"
)

// Tier is one matcher in the retrieval cascade. Match returns ok=false when
// the tier has no candidate; Accept decides whether a candidate ends the
// cascade.
type Tier interface {
	Name() string
	Match(ctx context.Context, question string) (result domain.Result, ok bool, err error)
	Accept(result domain.Result) bool
}

// ExactTier answers from the source and topic indexes.
type ExactTier struct {
	bundle *knowledge.Bundle
}

func NewExactTier(bundle *knowledge.Bundle) *ExactTier {
	return &ExactTier{bundle: bundle}
}

func (t *ExactTier) Name() string { return TierExact }

func (t *ExactTier) Match(_ context.Context, question string) (domain.Result, bool, error) {
	cleaned := normalize.Question(question)
	if cleaned == "" {
		return domain.Result{}, false, nil
	}
	snap := t.bundle.Lexical()
	if doc, ok := snap.BySource(normalize.SourceKey(cleaned)); ok {
		return localResult(doc, ExactSourceScore, domain.MethodExactSource, domain.ConfidenceHigh), true, nil
	}
	if doc, ok := snap.ByTopic(cleaned); ok {
		return localResult(doc, ExactTopicScore, domain.MethodExactTopic, domain.ConfidenceHigh), true, nil
	}
	return domain.Result{}, false, nil
}

func (t *ExactTier) Accept(domain.Result) bool { return true }

// KeywordTier scores documents by how many distinct question keywords their
// text contains.
type KeywordTier struct {
	bundle *knowledge.Bundle
}

func NewKeywordTier(bundle *knowledge.Bundle) *KeywordTier {
	return &KeywordTier{bundle: bundle}
}

func (t *KeywordTier) Name() string { return TierKeyword }

func (t *KeywordTier) Match(_ context.Context, question string) (domain.Result, bool, error) {
	keywords := normalize.Distinct(normalize.Keywords(question))
	if len(keywords) == 0 {
		return domain.Result{}, false, nil
	}

	snap := t.bundle.Lexical()
	counts := make(map[int]int)
	for _, kw := range keywords {
		for _, pos := range snap.Postings(kw) {
			counts[pos]++
		}
	}
	if len(counts) == 0 {
		return domain.Result{}, false, nil
	}

	best, bestCount := -1, 0
	for pos, count := range counts {
		if count > bestCount || (count == bestCount && pos < best) {
			best, bestCount = pos, count
		}
	}

	coverage := float64(bestCount) / float64(len(keywords))
	if coverage < KeywordMinCoverage {
		return domain.Result{}, false, nil
	}
	doc, ok := snap.Document(best)
	if !ok {
		return domain.Result{}, false, nil
	}

	score := min(coverage*KeywordCoverageGain, 1.0)
	label := domain.ConfidenceMedium
	if score > KeywordHighScore {
		label = domain.ConfidenceHigh
	}
	return localResult(doc, score, domain.MethodKeyword, label), true, nil
}

func (t *KeywordTier) Accept(r domain.Result) bool { return r.Score >= AcceptThreshold }

// SemanticTier embeds the raw question and searches the vector index.
type SemanticTier struct {
	bundle   *knowledge.Bundle
	embedder ports.Embedder
	k        int
}

func NewSemanticTier(bundle *knowledge.Bundle, embedder ports.Embedder, k int) *SemanticTier {
	if k <= 0 {
		k = DefaultSemanticK
	}
	return &SemanticTier{bundle: bundle, embedder: embedder, k: k}
}

func (t *SemanticTier) Name() string { return TierSemantic }

func (t *SemanticTier) Match(ctx context.Context, question string) (domain.Result, bool, error) {
	vectors := t.bundle.Vectors()
	if t.embedder == nil || vectors == nil || vectors.Len() == 0 {
		return domain.Result{}, false, nil
	}

	query, err := t.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return domain.Result{}, false, fmt.Errorf("embed question: %w", err)
	}
	neighbors, err := vectors.Nearest(ctx, query, t.k)
	if err != nil {
		return domain.Result{}, false, fmt.Errorf("nearest neighbours: %w", err)
	}

	snap := t.bundle.Lexical()
	best := domain.Neighbor{Position: -1}
	for _, n := range neighbors {
		if n.Position < 0 || n.Position >= snap.Len() {
			continue
		}
		if n.Score > SemanticMinScore && n.Score > best.Score {
			best = n
		}
	}
	if best.Position < 0 {
		return domain.Result{}, false, nil
	}

	doc, _ := snap.Document(best.Position)
	label := domain.ConfidenceMedium
	if best.Score > SemanticHighScore {
		label = domain.ConfidenceHigh
	}
	return localResult(doc, best.Score, domain.MethodSemantic, label), true, nil
}

func (t *SemanticTier) Accept(r domain.Result) bool { return r.Score >= AcceptThreshold }

// LiveTier wraps a live provider. A hit is ingested before it is returned so
// the next identical question is answered locally.
type LiveTier struct {
	provider ports.LiveProvider
	ingestor ports.KnowledgeIngestor
}

func NewLiveTier(provider ports.LiveProvider, ingestor ports.KnowledgeIngestor) *LiveTier {
	return &LiveTier{provider: provider, ingestor: ingestor}
}

func (t *LiveTier) Name() string { return string(t.provider.Method()) }

func (t *LiveTier) Match(ctx context.Context, question string) (domain.Result, bool, error) {
	hit, ok, err := t.provider.Lookup(ctx, question)
	if err != nil {
		return domain.Result{}, false, err
	}
	if !ok || !hit.Document.Valid() {
		return domain.Result{}, false, nil
	}

	if t.ingestor != nil {
		if _, err := t.ingestor.Append(ctx, []domain.Document{hit.Document}); err != nil {
			slog.Error("live_result_ingest_failed",
				"tier", t.Name(),
				"source", hit.Document.Source,
				"error", err,
			)
		}
	}

	return domain.Result{
		Text:       hit.Document.Text,
		Source:     hit.Document.Source,
		Score:      hit.Score,
		Method:     hit.Method,
		Confidence: hit.Confidence,
	}, true, nil
}

func (t *LiveTier) Accept(domain.Result) bool { return true }

// LocalTiers returns the exact, keyword and semantic tiers in cascade order.
func LocalTiers(bundle *knowledge.Bundle, embedder ports.Embedder, semanticK int) []Tier {
	return []Tier{
		NewExactTier(bundle),
		NewKeywordTier(bundle),
		NewSemanticTier(bundle, embedder, semanticK),
	}
}

// LiveTiers wraps providers in the order given.
func LiveTiers(providers []ports.LiveProvider, ingestor ports.KnowledgeIngestor) []Tier {
	out := make([]Tier, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		out = append(out, NewLiveTier(p, ingestor))
	}
	return out
}

func localResult(doc domain.Document, score float64, method domain.Method, label domain.Confidence) domain.Result {
	return domain.Result{
		Text:       doc.Text,
		Source:     doc.Source,
		Score:      score,
		Method:     method,
		Confidence: label,
	}
}
