package wikipedia

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

func newServer(t *testing.T, search string, pages func(r *http.Request) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			if q.Get("srlimit") != "5" {
				t.Errorf("unexpected srlimit %q", q.Get("srlimit"))
			}
			_, _ = w.Write([]byte(search))
		case q.Get("titles") != "":
			if q.Get("inprop") != "url" {
				t.Errorf("unexpected inprop %q", q.Get("inprop"))
			}
			_, _ = w.Write([]byte(pages(r)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLookupFetchesFirstRelevantHit(t *testing.T) {
	search := `{"query":{"search":[
		{"title":"Freud (film)","snippet":"a 1962 film"},
		{"title":"Sigmund Freud","snippet":"<span class=\"searchmatch\">Sigmund</span> Freud was an Austrian neurologist"}
	]}}`
	var requested string
	server := newServer(t, search, func(r *http.Request) string {
		requested = r.URL.Query().Get("titles")
		return `{"query":{"pages":[{"title":"Sigmund Freud","extract":"Sigmund Freud was an Austrian neurologist.","fullurl":"https://en.wikipedia.org/wiki/Sigmund_Freud"}]}}`
	})
	p := New(providers.Options{}).WithAPIURL(server.URL)

	hit, ok, err := p.Lookup(context.Background(), "Who was Sigmund Freud?")
	if err != nil || !ok {
		t.Fatalf("Lookup() ok=%v err=%v", ok, err)
	}
	if requested != "Sigmund Freud" {
		t.Fatalf("expected the relevant title to be fetched, got %q", requested)
	}
	if hit.Method != domain.MethodLiveWikipedia || hit.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected method/confidence %s/%s", hit.Method, hit.Confidence)
	}
	if math.Abs(hit.Score-0.88) > 1e-9 {
		t.Fatalf("unexpected score %v", hit.Score)
	}
	if hit.Document.Source != "https://en.wikipedia.org/wiki/Sigmund_Freud" {
		t.Fatalf("unexpected source %q", hit.Document.Source)
	}
	if hit.Document.Text != "Sigmund Freud was an Austrian neurologist." {
		t.Fatalf("unexpected text %q", hit.Document.Text)
	}
}

func TestLookupRejectsWeakOverlap(t *testing.T) {
	search := `{"query":{"search":[{"title":"Quantum","snippet":"physics"}]}}`
	server := newServer(t, search, func(*http.Request) string {
		t.Errorf("pages must not be fetched")
		return ""
	})
	p := New(providers.Options{}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "quantum entanglement experiments")
	if err != nil || ok {
		t.Fatalf("expected no hit, ok=%v err=%v", ok, err)
	}
}

func TestLookupSingleKeywordNeedsOneMatch(t *testing.T) {
	search := `{"query":{"search":[{"title":"Photosynthesis","snippet":"process"}]}}`
	server := newServer(t, search, func(*http.Request) string {
		return `{"query":{"pages":[{"title":"Photosynthesis","extract":"Plants make sugar.","fullurl":"https://en.wikipedia.org/wiki/Photosynthesis"}]}}`
	})
	p := New(providers.Options{}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "photosynthesis")
	if err != nil || !ok {
		t.Fatalf("expected a hit, ok=%v err=%v", ok, err)
	}
}

func TestLookupOnlyChecksTopThreeHits(t *testing.T) {
	search := `{"query":{"search":[
		{"title":"A","snippet":""},{"title":"B","snippet":""},{"title":"C","snippet":""},
		{"title":"Rust language","snippet":"rust language"}
	]}}`
	server := newServer(t, search, func(*http.Request) string {
		t.Errorf("pages must not be fetched")
		return ""
	})
	p := New(providers.Options{}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "rust language")
	if err != nil || ok {
		t.Fatalf("expected no hit, ok=%v err=%v", ok, err)
	}
}

func TestLookupRetriesForbidden(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "too many requests from this address", http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("list") == "search" {
			_, _ = w.Write([]byte(`{"query":{"search":[{"title":"Photosynthesis","snippet":""}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Photosynthesis","extract":"Plants make sugar.","fullurl":"https://en.wikipedia.org/wiki/Photosynthesis"}]}}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	p := New(providers.Options{Executor: executor}).WithAPIURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "photosynthesis")
	if err != nil || !ok {
		t.Fatalf("expected the forbidden response to be retried, ok=%v err=%v", ok, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", calls.Load())
	}
}

func TestSummaryReturnsLinks(t *testing.T) {
	server := newServer(t, `{}`, func(r *http.Request) string {
		if r.URL.Query().Get("exintro") != "1" || r.URL.Query().Get("pllimit") != "2" {
			t.Errorf("unexpected summary query %s", r.URL.RawQuery)
		}
		return `{"query":{"pages":[{"title":"Go","extract":"Go is a language.","fullurl":"https://en.wikipedia.org/wiki/Go","links":[{"title":"Google"},{"title":"C"},{"title":"Unix"}]}]}}`
	})
	c := NewClient(providers.Options{}).WithAPIURL(server.URL)

	page, ok, err := c.Summary(context.Background(), "Go", 2)
	if err != nil || !ok {
		t.Fatalf("Summary() ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(page.Links, []string{"Google", "C"}) {
		t.Fatalf("unexpected links %v", page.Links)
	}
}

func TestPagesDropsMissingPages(t *testing.T) {
	server := newServer(t, `{}`, func(*http.Request) string {
		return `{"query":{"pages":[{"title":"Nope","missing":true},{"title":"Empty","extract":"","fullurl":"u"}]}}`
	})
	c := NewClient(providers.Options{}).WithAPIURL(server.URL)

	pages, err := c.Pages(context.Background(), []string{"Nope", "Empty"})
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %+v", pages)
	}
}
