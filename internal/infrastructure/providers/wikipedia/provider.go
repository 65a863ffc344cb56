// Package wikipedia answers questions with the plain-text extract of the
// first relevant English Wikipedia article.
package wikipedia

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/htmltext"
)

const (
	DefaultAPIURL = "https://en.wikipedia.org/w/api.php"
	Score         = 0.88

	searchLimit = 5
	candidates  = 3
	minOverlap  = 2
)

type Provider struct {
	client *Client
}

func New(opts providers.Options) *Provider {
	return &Provider{client: NewClient(opts)}
}

func (p *Provider) WithAPIURL(apiURL string) *Provider {
	p.client.apiURL = apiURL
	return p
}

func (p *Provider) Method() domain.Method { return domain.MethodLiveWikipedia }

// Lookup accepts one of the top three search hits when its title and
// snippet contain at least min(2, |keywords|) of the question's keywords.
func (p *Provider) Lookup(ctx context.Context, q string) (domain.LiveHit, bool, error) {
	keywords := normalize.Distinct(normalize.Keywords(q))
	if len(keywords) == 0 {
		return domain.LiveHit{}, false, nil
	}
	required := min(minOverlap, len(keywords))

	ctx, cancel := p.client.fetch.Bound(ctx)
	defer cancel()

	hits, err := p.client.Search(ctx, normalize.Question(q), searchLimit)
	if err != nil {
		return domain.LiveHit{}, false, err
	}
	if len(hits) > candidates {
		hits = hits[:candidates]
	}
	for _, hit := range hits {
		text := hit.Title + " " + htmltext.Text(hit.Snippet)
		if providers.Overlap(keywords, text) < required {
			continue
		}
		pages, err := p.client.Pages(ctx, []string{hit.Title})
		if err != nil {
			return domain.LiveHit{}, false, err
		}
		if len(pages) == 0 {
			continue
		}
		page := pages[0]
		return domain.LiveHit{
			Document: domain.Document{
				Text:   providers.Truncate(page.Extract, p.client.fetch.MaxText()),
				Source: page.FullURL,
			},
			Score:      Score,
			Method:     domain.MethodLiveWikipedia,
			Confidence: domain.ConfidenceHigh,
		}, true, nil
	}
	return domain.LiveHit{}, false, nil
}

// Client is a small MediaWiki action API client shared with the
// enrichment crawler.
type Client struct {
	fetch  *providers.Fetcher
	apiURL string
}

// NewClient builds a MediaWiki API client. 403 is retried because Wikipedia
// answers bursts from shared addresses with a transient 403.
func NewClient(opts providers.Options) *Client {
	opts.RetryStatuses = append(slices.Clone(opts.RetryStatuses), http.StatusForbidden)
	return &Client{
		fetch:  providers.NewFetcher("wikipedia", opts),
		apiURL: DefaultAPIURL,
	}
}

func (c *Client) WithAPIURL(apiURL string) *Client {
	c.apiURL = apiURL
	return c
}

type SearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type Page struct {
	Title   string
	Extract string
	FullURL string
	Links   []string
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {strconv.Itoa(limit)},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp struct {
		Query struct {
			Search []SearchHit `json:"search"`
		} `json:"query"`
	}
	if err := c.fetch.GetJSON(ctx, "search", c.apiURL, params, &resp); err != nil {
		return nil, err
	}
	return resp.Query.Search, nil
}

// Pages fetches plain-text extracts and canonical URLs. Pages without text
// or URL are dropped.
func (c *Client) Pages(ctx context.Context, titles []string) ([]Page, error) {
	return c.pages(ctx, titles, false, 0)
}

// Summary fetches the lead section of one page plus up to maxLinks article
// links.
func (c *Client) Summary(ctx context.Context, title string, maxLinks int) (Page, bool, error) {
	pages, err := c.pages(ctx, []string{title}, true, maxLinks)
	if err != nil || len(pages) == 0 {
		return Page{}, false, err
	}
	return pages[0], true, nil
}

func (c *Client) pages(ctx context.Context, titles []string, intro bool, maxLinks int) ([]Page, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts|info"},
		"explaintext":   {"1"},
		"inprop":        {"url"},
		"redirects":     {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
		"titles":        {strings.Join(titles, "|")},
	}
	if intro {
		params.Set("exintro", "1")
	}
	if maxLinks > 0 {
		params.Set("prop", "extracts|info|links")
		params.Set("plnamespace", "0")
		params.Set("pllimit", strconv.Itoa(maxLinks))
	}

	var resp struct {
		Query struct {
			Pages []struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
				FullURL string `json:"fullurl"`
				Missing bool   `json:"missing"`
				Links   []struct {
					Title string `json:"title"`
				} `json:"links"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.fetch.GetJSON(ctx, "pages", c.apiURL, params, &resp); err != nil {
		return nil, err
	}

	out := make([]Page, 0, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		if p.Missing || strings.TrimSpace(p.Extract) == "" || strings.TrimSpace(p.FullURL) == "" {
			continue
		}
		page := Page{Title: p.Title, Extract: p.Extract, FullURL: p.FullURL}
		for _, l := range p.Links {
			if len(page.Links) == maxLinks {
				break
			}
			page.Links = append(page.Links, l.Title)
		}
		out = append(out, page)
	}
	return out, nil
}
