package stackoverflow

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
)

func newServer(t *testing.T, searchBody, answersBody string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch {
		case r.URL.Path == "/search/advanced":
			q := r.URL.Query()
			if q.Get("filter") != "withbody" || q.Get("pagesize") != "5" {
				t.Errorf("unexpected search query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(searchBody))
		case strings.HasPrefix(r.URL.Path, "/questions/42/answers"):
			if r.URL.Query().Get("sort") != "votes" {
				t.Errorf("unexpected answers sort %q", r.URL.Query().Get("sort"))
			}
			_, _ = w.Write([]byte(answersBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestLookupSkipsNonProgrammingQuestions(t *testing.T) {
	server, calls := newServer(t, `{"items":[]}`, `{"items":[]}`)
	p := New(providers.Options{}).WithBaseURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "history of the roman empire")
	if err != nil || ok {
		t.Fatalf("expected no hit, ok=%v err=%v", ok, err)
	}
	if *calls != 0 {
		t.Fatalf("expected no upstream calls, got %d", *calls)
	}
}

func TestLookupPrefersAcceptedAnswer(t *testing.T) {
	search := `{"items":[{"question_id":42,"title":"Python list comprehension error","link":"https://stackoverflow.com/q/42","body":"<p>bug</p>","is_answered":true}]}`
	answers := `{"items":[
		{"body":"<p>top voted</p>","score":50,"is_accepted":false},
		{"body":"<p>Use <code>enumerate</code>.</p>","score":7,"is_accepted":true}
	]}`
	server, _ := newServer(t, search, answers)
	p := New(providers.Options{}).WithBaseURL(server.URL)

	hit, ok, err := p.Lookup(context.Background(), "python list comprehension error")
	if err != nil || !ok {
		t.Fatalf("Lookup() ok=%v err=%v", ok, err)
	}
	if hit.Method != domain.MethodLiveStackOverflow || hit.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected method/confidence %s/%s", hit.Method, hit.Confidence)
	}
	if math.Abs(hit.Score-0.90) > 1e-9 {
		t.Fatalf("unexpected score %v", hit.Score)
	}
	if hit.Document.Source != "https://stackoverflow.com/q/42" {
		t.Fatalf("unexpected source %q", hit.Document.Source)
	}
	if !strings.Contains(hit.Document.Text, "Question: Python list comprehension error") {
		t.Fatalf("question missing from %q", hit.Document.Text)
	}
	if !strings.Contains(hit.Document.Text, "Best Answer (Score: 7, Accepted):\nUse enumerate.") {
		t.Fatalf("accepted answer missing from %q", hit.Document.Text)
	}
}

func TestLookupFallsBackToHighestScore(t *testing.T) {
	search := `{"items":[{"question_id":42,"title":"javascript closure bug","link":"https://stackoverflow.com/q/42","body":"","is_answered":true}]}`
	answers := `{"items":[{"body":"low","score":1},{"body":"high","score":9}]}`
	server, _ := newServer(t, search, answers)
	p := New(providers.Options{}).WithBaseURL(server.URL)

	hit, ok, err := p.Lookup(context.Background(), "javascript closure bug")
	if err != nil || !ok {
		t.Fatalf("Lookup() ok=%v err=%v", ok, err)
	}
	if !strings.Contains(hit.Document.Text, "(Score: 9):\nhigh") {
		t.Fatalf("highest scored answer missing from %q", hit.Document.Text)
	}
}

func TestLookupRejectsIrrelevantUnansweredQuestions(t *testing.T) {
	search := `{"items":[{"question_id":42,"title":"Something else","link":"x","body":"<p>nothing</p>","is_answered":false}]}`
	server, calls := newServer(t, search, `{"items":[]}`)
	p := New(providers.Options{}).WithBaseURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "fix python import error")
	if err != nil || ok {
		t.Fatalf("expected no hit, ok=%v err=%v", ok, err)
	}
	if *calls != 1 {
		t.Fatalf("expected only the search call, got %d", *calls)
	}
}

func TestLookupTruncatesText(t *testing.T) {
	search := `{"items":[{"question_id":42,"title":"java error","link":"https://stackoverflow.com/q/42","is_answered":true}]}`
	answers := `{"items":[{"body":"` + strings.Repeat("x", 500) + `","score":1,"is_accepted":true}]}`
	server, _ := newServer(t, search, answers)
	p := New(providers.Options{MaxText: 100}).WithBaseURL(server.URL)

	hit, ok, err := p.Lookup(context.Background(), "java error")
	if err != nil || !ok {
		t.Fatalf("Lookup() ok=%v err=%v", ok, err)
	}
	if n := len([]rune(hit.Document.Text)); n != 100 {
		t.Fatalf("expected 100 runes, got %d", n)
	}
}

func TestLookupReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusBadRequest)
	}))
	defer server.Close()
	p := New(providers.Options{}).WithBaseURL(server.URL)

	_, ok, err := p.Lookup(context.Background(), "python error")
	if err == nil || ok {
		t.Fatalf("expected upstream error, ok=%v err=%v", ok, err)
	}
}
