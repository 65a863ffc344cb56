// Package arxiv searches arXiv for research papers through its Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
)

const (
	DefaultAPIURL = "http://export.arxiv.org/api/query"
	Score         = 0.84
	SourcePrefix  = "arxiv:"

	maxResults    = 3
	maxSummaryLen = 1500
)

type Provider struct {
	fetch  *providers.Fetcher
	apiURL string
}

func New(opts providers.Options) *Provider {
	return &Provider{
		fetch:  providers.NewFetcher("arxiv", opts),
		apiURL: DefaultAPIURL,
	}
}

func (p *Provider) WithAPIURL(apiURL string) *Provider {
	p.apiURL = apiURL
	return p
}

func (p *Provider) Method() domain.Method { return domain.MethodLiveArxiv }

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	ID      string `xml:"id"`
	Links   []link `xml:"link"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// href prefers the abstract page, the feed's alternate link.
func (e entry) href() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" && l.Href != "" {
			return l.Href
		}
	}
	if len(e.Links) > 0 && e.Links[0].Href != "" {
		return e.Links[0].Href
	}
	return strings.TrimSpace(e.ID)
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
		"search_query": {"all:" + cleaned},
		"start":        {"0"},
		"max_results":  {fmt.Sprint(maxResults)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}
	body, err := p.fetch.GetBody(ctx, "query", p.apiURL, params)
	if err != nil {
		return domain.LiveHit{}, false, err
	}
	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return domain.LiveHit{}, false, fmt.Errorf("decode arxiv feed: %w", err)
	}
	if len(f.Entries) == 0 {
		return domain.LiveHit{}, false, nil
	}
	entries := f.Entries
	if len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	var b strings.Builder
	b.WriteString("Relevant research papers from arXiv:\n")
	var all strings.Builder
	for _, e := range entries {
		title := collapse(e.Title)
		summary := providers.Truncate(collapse(e.Summary), maxSummaryLen)
		fmt.Fprintf(&b, "\n• %s\n%s\n(PDF: %s)\n", title, summary, e.href())
		all.WriteString(title + " " + summary + " ")
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
		Method:     domain.MethodLiveArxiv,
		Confidence: domain.ConfidenceHigh,
	}, true, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
