package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("INGEST_FLUSH_EVERY", "")
	t.Setenv("SEMANTIC_TOP_K", "")
	t.Setenv("PROVIDER_TIMEOUT", "")
	t.Setenv("PROVIDER_MAX_TEXT", "")
	t.Setenv("LIVE_FALLBACK_ENABLED", "")
	t.Setenv("PROVIDERS_CONFIG", "")

	cfg := Load()
	if cfg.APIPort != "8001" {
		t.Fatalf("expected default port 8001, got %q", cfg.APIPort)
	}
	if cfg.IngestFlushEvery != 5000 {
		t.Fatalf("expected default flush size 5000, got %d", cfg.IngestFlushEvery)
	}
	if cfg.SemanticTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.SemanticTopK)
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Fatalf("expected default provider timeout 30s, got %v", cfg.ProviderTimeout)
	}
	if cfg.ProviderMaxText != 10000 {
		t.Fatalf("expected default max text 10000, got %d", cfg.ProviderMaxText)
	}
	if !cfg.LiveFallbackEnabled {
		t.Fatalf("expected live fallback enabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("INGEST_FLUSH_EVERY", "100")
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("LIVE_FALLBACK_ENABLED", "false")
	t.Setenv("SEMANTIC_TOP_K", "not-a-number")
	t.Setenv("PROVIDERS_CONFIG", "")

	cfg := Load()
	if cfg.IngestFlushEvery != 100 {
		t.Fatalf("expected flush size 100, got %d", cfg.IngestFlushEvery)
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Fatalf("expected provider timeout 5s, got %v", cfg.ProviderTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.LiveFallbackEnabled {
		t.Fatalf("expected live fallback disabled")
	}
	if cfg.SemanticTopK != 5 {
		t.Fatalf("expected invalid int to fall back to 5, got %d", cfg.SemanticTopK)
	}
}

func TestProvidersOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	overlay := `
providers:
  - name: Reddit
    enabled: false
  - name: wikipedia
    timeout: 5s
    rps: 3
    max_text: 2000
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("PROVIDERS_CONFIG", path)
	t.Setenv("PROVIDER_TIMEOUT", "")

	cfg := Load()
	if cfg.Provider("reddit").IsEnabled() {
		t.Fatalf("expected reddit disabled by overlay")
	}
	wiki := cfg.Provider("wikipedia")
	if !wiki.IsEnabled() || wiki.Timeout != 5*time.Second || wiki.RPS != 3 || wiki.MaxText != 2000 {
		t.Fatalf("unexpected wikipedia settings %+v", wiki)
	}
	arxiv := cfg.Provider("arxiv")
	if !arxiv.IsEnabled() || arxiv.Timeout != 30*time.Second || arxiv.MaxText != 10000 {
		t.Fatalf("expected defaults for unlisted provider, got %+v", arxiv)
	}
}
