package usecase

import (
	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/knowledge"
)

type StatsUseCase struct {
	bundle *knowledge.Bundle
}

func NewStatsUseCase(bundle *knowledge.Bundle) *StatsUseCase {
	return &StatsUseCase{bundle: bundle}
}

func (uc *StatsUseCase) Health() domain.IndexStats {
	return uc.bundle.Stats()
}

// Knowledge counts documents per source prefix and returns the first samples
// documents of the store.
func (uc *StatsUseCase) Knowledge(samples int) domain.KnowledgeStats {
	docs := uc.bundle.Lexical().Documents()
	return SummarizeCorpus(docs, samples)
}

func SummarizeCorpus(docs []domain.Document, samples int) domain.KnowledgeStats {
	stats := domain.KnowledgeStats{
		TotalEntries: len(docs),
		Sources:      make(map[string]int),
		Samples:      []domain.Document{},
	}
	for _, doc := range docs {
		stats.Sources[SourcePrefix(doc.Source)]++
	}
	if samples > len(docs) {
		samples = len(docs)
	}
	if samples > 0 {
		stats.Samples = append(stats.Samples, docs[:samples]...)
	}
	return stats
}
