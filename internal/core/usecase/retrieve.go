package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
)

const (
	TierOutcomeAccepted = "accepted"
	TierOutcomeRejected = "rejected"
	TierOutcomeMiss     = "miss"
	TierOutcomeError    = "error"
)

// RetrievalObserver receives per-tier and per-request outcomes.
type RetrievalObserver interface {
	ObserveTier(tier, outcome string)
	ObserveRetrieval(method domain.Method, duration time.Duration)
}

// RetrievalUseCase runs the tier cascade. It never fails: tier errors are
// logged and treated as a miss, and exhausting every tier yields the
// terminal no-match result.
type RetrievalUseCase struct {
	tiers    []Tier
	observer RetrievalObserver
	now      func() time.Time
}

func NewRetrievalUseCase(tiers []Tier, observer RetrievalObserver) *RetrievalUseCase {
	return &RetrievalUseCase{
		tiers:    tiers,
		observer: observer,
		now:      time.Now,
	}
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, question string) domain.Result {
	start := uc.now()
	result := uc.cascade(ctx, question)
	result.SearchTime = uc.now().Sub(start)

	if uc.observer != nil {
		uc.observer.ObserveRetrieval(result.Method, result.SearchTime)
	}
	return result
}

func (uc *RetrievalUseCase) cascade(ctx context.Context, question string) domain.Result {
	for _, tier := range uc.tiers {
		if ctx.Err() != nil {
			break
		}

		result, ok, err := tier.Match(ctx, question)
		switch {
		case err != nil:
			uc.observeTier(tier.Name(), TierOutcomeError)
			level := slog.LevelWarn
			if errors.Is(err, context.Canceled) {
				level = slog.LevelDebug
			}
			slog.Log(ctx, level, "tier_failed", "tier", tier.Name(), "error", err)
			continue
		case !ok:
			uc.observeTier(tier.Name(), TierOutcomeMiss)
			continue
		case !tier.Accept(result):
			uc.observeTier(tier.Name(), TierOutcomeRejected)
			slog.Debug("tier_below_threshold", "tier", tier.Name(), "score", result.Score)
			continue
		}

		uc.observeTier(tier.Name(), TierOutcomeAccepted)
		return result
	}
	return domain.NoMatch()
}

// Debug runs each local tier in isolation next to the full cascade.
func (uc *RetrievalUseCase) Debug(ctx context.Context, question string) domain.DebugReport {
	report := domain.DebugReport{
		Question: question,
		Cleaned:  normalize.Question(question),
		Keywords: normalize.Keywords(question),
	}
	if report.Keywords == nil {
		report.Keywords = []string{}
	}

	for _, tier := range uc.tiers {
		var probe *domain.TierProbe
		switch tier.Name() {
		case TierExact:
			probe = &report.Exact
		case TierKeyword:
			probe = &report.Keyword
		case TierSemantic:
			probe = &report.Semantic
		default:
			continue
		}
		result, ok, err := tier.Match(ctx, question)
		if err != nil {
			slog.Warn("debug_tier_failed", "tier", tier.Name(), "error", err)
		}
		*probe = domain.ProbeOf(result, ok && err == nil)
	}

	report.Best = uc.Retrieve(ctx, question)
	return report
}

func (uc *RetrievalUseCase) observeTier(tier, outcome string) {
	if uc.observer != nil {
		uc.observer.ObserveTier(tier, outcome)
	}
}
