// Package reddit surfaces discussions from Reddit's public search.
package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
)

const (
	DefaultBaseURL = "https://www.reddit.com"
	Score          = 0.82
	SourcePrefix   = "reddit_search:"

	searchLimit  = 5
	maxPosts     = 3
	maxSelfText  = 2000
	permalinkURL = "https://reddit.com"
)

type Provider struct {
	fetch   *providers.Fetcher
	baseURL string
}

func New(opts providers.Options) *Provider {
	return &Provider{
		fetch:   providers.NewFetcher("reddit", opts),
		baseURL: DefaultBaseURL,
	}
}

func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Method() domain.Method { return domain.MethodLiveReddit }

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Title     string `json:"title"`
	SelfText  string `json:"selftext"`
	Permalink string `json:"permalink"`
}

func (p *Provider) Lookup(ctx context.Context, q string) (domain.LiveHit, bool, error) {
	keywords := normalize.Distinct(normalize.Keywords(q))
	if len(keywords) == 0 {
		return domain.LiveHit{}, false, nil
	}
	cleaned := normalize.Question(q)

	ctx, cancel := p.fetch.Bound(ctx)
	defer cancel()

	params := url.Values{
		"q":        {cleaned},
		"sort":     {"relevance"},
		"t":        {"all"},
		"limit":    {fmt.Sprint(searchLimit)},
		"raw_json": {"1"},
	}
	var resp listing
	if err := p.fetch.GetJSON(ctx, "search", p.baseURL+"/search.json", params, &resp); err != nil {
		return domain.LiveHit{}, false, err
	}
	children := resp.Data.Children
	if len(children) == 0 {
		return domain.LiveHit{}, false, nil
	}
	if len(children) > maxPosts {
		children = children[:maxPosts]
	}

	var b strings.Builder
	b.WriteString("Relevant Reddit discussions:\n")
	var all strings.Builder
	for _, c := range children {
		selfText := providers.Truncate(strings.TrimSpace(c.Data.SelfText), maxSelfText)
		fmt.Fprintf(&b, "\n• %s\n%s\n(Source: %s%s)\n", c.Data.Title, selfText, permalinkURL, c.Data.Permalink)
		all.WriteString(c.Data.Title + " " + selfText + " ")
	}
	if providers.Overlap(keywords, all.String()) == 0 {
		return domain.LiveHit{}, false, nil
	}

	return domain.LiveHit{
		Document: domain.Document{
			Text:   providers.Truncate(b.String(), p.fetch.MaxText()),
			Source: SourcePrefix + cleaned,
		},
		Score:      Score,
		Method:     domain.MethodLiveReddit,
		Confidence: domain.ConfidenceMedium,
	}, true, nil
}
