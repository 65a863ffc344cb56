package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
}

func TestGetJSONSendsUserAgentAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected user agent %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "golang channels" {
			t.Errorf("unexpected query %q", got)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := NewFetcher("demo", Options{UserAgent: "test-agent"})
	var out struct {
		OK bool `json:"ok"`
	}
	if err := f.GetJSON(context.Background(), "search", server.URL, url.Values{"q": {"golang channels"}}, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !out.OK {
		t.Fatalf("expected decoded body")
	}
}

func TestGetBodyRetriesThrottledResponses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	f := NewFetcher("demo", Options{Executor: testExecutor()})
	body, err := f.GetBody(context.Background(), "page", server.URL, nil)
	if err != nil {
		t.Fatalf("GetBody() error = %v", err)
	}
	if string(body) != "done" || calls.Load() != 2 {
		t.Fatalf("unexpected body %q after %d calls", body, calls.Load())
	}
}

func TestGetBodyRetriesExtraStatuses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	executor := testExecutor()
	plain := NewFetcher("demo", Options{Executor: executor})
	if _, err := plain.GetBody(context.Background(), "page", server.URL, nil); err == nil {
		t.Fatalf("expected 403 to fail without extra retry statuses")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}

	calls.Store(0)
	f := NewFetcher("demo", Options{Executor: executor, RetryStatuses: []int{http.StatusForbidden}})
	body, err := f.GetBody(context.Background(), "page", server.URL, nil)
	if err != nil {
		t.Fatalf("GetBody() error = %v", err)
	}
	if string(body) != "done" || calls.Load() != 2 {
		t.Fatalf("unexpected body %q after %d calls", body, calls.Load())
	}
}

func TestGetBodyReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher("demo", Options{})
	_, err := f.GetBody(context.Background(), "page", server.URL, nil)
	var statusErr *resilience.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Service != "demo" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestBoundAppliesTimeout(t *testing.T) {
	f := NewFetcher("demo", Options{Timeout: time.Second})
	ctx, cancel := f.Bound(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if d := time.Until(deadline); d > time.Second || d < 900*time.Millisecond {
		t.Fatalf("unexpected deadline in %v", d)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"héllo", 4, "héll"},
		{"abc", 10, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.limit); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestOverlapCountsDistinctKeywords(t *testing.T) {
	kw := []string{"goroutine", "leak", "goroutine", "channel"}
	if got := Overlap(kw, "Finding a Goroutine leak in production"); got != 2 {
		t.Fatalf("Overlap() = %d, want 2", got)
	}
	if got := Overlap(kw, "unrelated"); got != 0 {
		t.Fatalf("Overlap() = %d, want 0", got)
	}
}

func TestHasAny(t *testing.T) {
	vocab := Vocabulary("Python", "code")
	if !HasAny([]string{"write", "python"}, vocab) {
		t.Fatalf("expected python to match")
	}
	if HasAny([]string{"history"}, vocab) {
		t.Fatalf("expected history not to match")
	}
}
