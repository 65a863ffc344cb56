package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/kbretrieval/knowledge-service/internal/config"
	"github.com/kbretrieval/knowledge-service/internal/core/ports"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/arxiv"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/github"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/reddit"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/stackoverflow"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/wikipedia"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/youtube"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

// ProviderOrder is the live cascade order. Configuration can disable or tune
// a provider but never reorder them.
var ProviderOrder = []string{"stackoverflow", "github", "wikipedia", "arxiv", "reddit", "youtube"}

func liveProviders(cfg config.Config, executor *resilience.Executor) ([]ports.LiveProvider, error) {
	out := make([]ports.LiveProvider, 0, len(ProviderOrder))
	for _, name := range ProviderOrder {
		pc := cfg.Provider(name)
		if !pc.IsEnabled() {
			slog.Info("live_provider_disabled", "provider", name)
			continue
		}
		opts := providers.Options{
			Timeout:   pc.Timeout,
			MaxText:   pc.MaxText,
			RPS:       pc.RPS,
			UserAgent: cfg.HTTPUserAgent,
			Executor:  executor,
		}

		var p ports.LiveProvider
		switch name {
		case "stackoverflow":
			p = stackoverflow.New(opts)
		case "github":
			gp, err := github.New(cfg.GitHubToken, opts)
			if err != nil {
				return nil, fmt.Errorf("init github provider: %w", err)
			}
			p = gp
		case "wikipedia":
			p = wikipedia.New(opts)
		case "arxiv":
			p = arxiv.New(opts)
		case "reddit":
			p = reddit.New(opts)
		case "youtube":
			p = youtube.New(opts)
		}
		out = append(out, p)
	}
	names := make([]string, 0, len(out))
	for _, p := range out {
		names = append(names, string(p.Method()))
	}
	slog.Info("live_providers_enabled", "providers", names)
	return out, nil
}
