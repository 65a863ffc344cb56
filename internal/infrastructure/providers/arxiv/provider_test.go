package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models are based on
      complex recurrent networks. We propose the transformer.</summary>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2000.00001v1</id>
    <title>Another transformer paper</title>
    <summary>SUMMARY_PLACEHOLDER</summary>
  </entry>
</feed>`

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("search_query") != "all:transformer architecture" || q.Get("max_results") != "3" {
			t.Errorf("unexpected arxiv query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLookupRendersEntries(t *testing.T) {
	body := strings.Replace(atomFeed, "SUMMARY_PLACEHOLDER", strings.Repeat("a", 2000), 1)
	server := newServer(t, body)
	p := New(providers.Options{}).WithAPIURL(server.URL)

	hit, ok, err := p.Lookup(context.Background(), "explain transformer architecture")
	if err != nil || !ok {
		t.Fatalf("Lookup() ok=%v err=%v", ok, err)
	}
	if hit.Method != domain.MethodLiveArxiv || hit.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected method/confidence %s/%s", hit.Method, hit.Confidence)
	}
	if hit.Document.Source != "arxiv:transformer architecture" {
		t.Fatalf("unexpected source %q", hit.Document.Source)
	}
	for _, want := range []string{
		"• Attention Is All You Need\nThe dominant sequence",
		"(PDF: http://arxiv.org/abs/1706.03762v7)",
		"(PDF: http://arxiv.org/abs/2000.00001v1)",
	} {
		if !strings.Contains(hit.Document.Text, want) {
			t.Fatalf("expected %q in %q", want, hit.Document.Text)
		}
	}
	if strings.Contains(hit.Document.Text, strings.Repeat("a", 1501)) {
		t.Fatalf("expected summaries cut at 1500 characters")
	}
}

func TestLookupEmptyFeed(t *testing.T) {
	server := newServer(t, `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`)
	p := New(providers.Options{}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "transformer architecture")
	if err != nil || ok {
		t.Fatalf("expected no hit, ok=%v err=%v", ok, err)
	}
}

func TestLookupRejectsUnrelatedEntries(t *testing.T) {
	server := newServer(t, `<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>Galaxies</title><summary>stars</summary></entry></feed>`)
	p := New(providers.Options{}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "transformer architecture")
	if err != nil || ok {
		t.Fatalf("expected no hit, ok=%v err=%v", ok, err)
	}
}

func TestLookupMalformedFeed(t *testing.T) {
	server := newServer(t, `<feed><entry>`)
	p := New(providers.Options{}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "transformer architecture")
	if err == nil || ok {
		t.Fatalf("expected decode error, ok=%v err=%v", ok, err)
	}
}
