package bootstrap

import (
	"testing"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/config"
	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

func TestLiveProvidersKeepFixedOrder(t *testing.T) {
	disabled := false
	cfg := config.Config{
		ProviderTimeout: time.Second,
		ProviderMaxText: 100,
		ProviderRPS:     1,
		Providers: []config.ProviderConfig{
			{Name: "youtube", RPS: 5},
			{Name: "reddit", Enabled: &disabled},
			{Name: "stackoverflow"},
		},
	}

	got, err := liveProviders(cfg, nil)
	if err != nil {
		t.Fatalf("liveProviders() error = %v", err)
	}
	want := []domain.Method{
		domain.MethodLiveStackOverflow,
		domain.MethodLiveGitHubCode,
		domain.MethodLiveWikipedia,
		domain.MethodLiveArxiv,
		domain.MethodLiveYouTube,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(got))
	}
	for i, p := range got {
		if p.Method() != want[i] {
			t.Fatalf("provider %d = %s, want %s", i, p.Method(), want[i])
		}
	}
}
