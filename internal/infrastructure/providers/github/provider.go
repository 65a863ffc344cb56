// Package github finds example code through the GitHub code search API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	gh "github.com/google/go-github/v81/github"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

const (
	Score        = 0.80
	SourcePrefix = "github_code:"

	maxResults = 3
)

var triggers = providers.Vocabulary(
	"code", "python", "java", "javascript", "example", "snippet", "implement",
)

type Provider struct {
	fetch  *providers.Fetcher
	client *gh.Client
}

// New builds a code search client behind the secondary rate limit waiter.
// An empty token searches anonymously with the lower quota.
func New(token string, opts providers.Options) (*Provider, error) {
	fetch := providers.NewFetcher("github", opts)
	hc, err := github_ratelimit.NewRateLimitWaiterClient(fetch.HTTPClient().Transport)
	if err != nil {
		return nil, fmt.Errorf("create github rate limit client: %w", err)
	}
	client := gh.NewClient(hc)
	client.UserAgent = fetch.UserAgent()
	if strings.TrimSpace(token) != "" {
		client = client.WithAuthToken(token)
	}
	return &Provider{fetch: fetch, client: client}, nil
}

// WithBaseURL points the client at another API root (GitHub Enterprise or a
// test server).
func (p *Provider) WithBaseURL(raw string) (*Provider, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse github base url: %w", err)
	}
	p.client.BaseURL = u
	return p, nil
}

func (p *Provider) Method() domain.Method { return domain.MethodLiveGitHubCode }

func (p *Provider) Lookup(ctx context.Context, q string) (domain.LiveHit, bool, error) {
	if !providers.HasAny(normalize.Keywords(q), triggers) {
		return domain.LiveHit{}, false, nil
	}
	cleaned := normalize.Question(q)

	ctx, cancel := p.fetch.Bound(ctx)
	defer cancel()

	var result *gh.CodeSearchResult
	err := p.fetch.Do(ctx, "search_code", func(ctx context.Context) error {
		res, _, err := p.client.Search.Code(ctx, cleaned, &gh.SearchOptions{
			ListOptions: gh.ListOptions{PerPage: maxResults},
		})
		if err != nil {
			return statusError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		return domain.LiveHit{}, false, err
	}
	if result == nil || len(result.CodeResults) == 0 {
		return domain.LiveHit{}, false, nil
	}

	items := result.CodeResults
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	var b strings.Builder
	b.WriteString("Relevant code from GitHub public repos:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "\n• %s/%s\nLink: %s\n", item.GetRepository().GetFullName(), item.GetPath(), item.GetHTMLURL())
	}

	return domain.LiveHit{
		Document: domain.Document{
			Text:   providers.Truncate(b.String(), p.fetch.MaxText()),
			Source: SourcePrefix + cleaned,
		},
		Score:      Score,
		Method:     domain.MethodLiveGitHubCode,
		Confidence: domain.ConfidenceMedium,
	}, true, nil
}

// statusError rewrites API error responses so the shared HTTP classifier
// can decide on retries.
func statusError(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return err
	}
	var apiErr *gh.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return &resilience.HTTPStatusError{
			Service:    "github",
			Operation:  "search_code",
			StatusCode: apiErr.Response.StatusCode,
			Status:     http.StatusText(apiErr.Response.StatusCode),
			Body:       apiErr.Message,
		}
	}
	return err
}
