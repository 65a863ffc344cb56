// Package stackoverflow answers programming questions from the Stack
// Exchange API: the most relevant question's accepted or top-voted answer.
package stackoverflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/htmltext"
)

const (
	DefaultBaseURL = "https://api.stackexchange.com/2.3"
	Score          = 0.90

	searchPageSize = 5
	minMatches     = 3
	matchRatio     = 0.6
)

var triggers = providers.Vocabulary(
	"code", "python", "java", "javascript", "error", "bug", "function",
	"class", "api", "library", "framework", "debug", "fix",
)

type Provider struct {
	fetch   *providers.Fetcher
	baseURL string
}

func New(opts providers.Options) *Provider {
	return &Provider{
		fetch:   providers.NewFetcher("stackoverflow", opts),
		baseURL: DefaultBaseURL,
	}
}

func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Method() domain.Method { return domain.MethodLiveStackOverflow }

type question struct {
	QuestionID int64  `json:"question_id"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	Body       string `json:"body"`
	IsAnswered bool   `json:"is_answered"`
}

type answer struct {
	Body       string `json:"body"`
	Score      int    `json:"score"`
	IsAccepted bool   `json:"is_accepted"`
}

func (p *Provider) Lookup(ctx context.Context, q string) (domain.LiveHit, bool, error) {
	keywords := normalize.Distinct(normalize.Keywords(q))
	if !providers.HasAny(keywords, triggers) {
		return domain.LiveHit{}, false, nil
	}

	ctx, cancel := p.fetch.Bound(ctx)
	defer cancel()

	var search struct {
		Items []question `json:"items"`
	}
	params := url.Values{
		"order":    {"desc"},
		"sort":     {"relevance"},
		"q":        {normalize.Question(q)},
		"site":     {"stackoverflow"},
		"pagesize": {fmt.Sprint(searchPageSize)},
		"filter":   {"withbody"},
	}
	if err := p.fetch.GetJSON(ctx, "search", p.baseURL+"/search/advanced", params, &search); err != nil {
		return domain.LiveHit{}, false, err
	}

	picked, ok := pickQuestion(search.Items, keywords)
	if !ok {
		return domain.LiveHit{}, false, nil
	}

	var answers struct {
		Items []answer `json:"items"`
	}
	params = url.Values{
		"order":  {"desc"},
		"sort":   {"votes"},
		"site":   {"stackoverflow"},
		"filter": {"withbody"},
	}
	endpoint := fmt.Sprintf("%s/questions/%d/answers", p.baseURL, picked.QuestionID)
	if err := p.fetch.GetJSON(ctx, "answers", endpoint, params, &answers); err != nil {
		return domain.LiveHit{}, false, err
	}
	best, ok := bestAnswer(answers.Items)
	if !ok {
		return domain.LiveHit{}, false, nil
	}

	text := providers.Truncate(render(picked, best), p.fetch.MaxText())
	return domain.LiveHit{
		Document:   domain.Document{Text: text, Source: picked.Link},
		Score:      Score,
		Method:     domain.MethodLiveStackOverflow,
		Confidence: domain.ConfidenceHigh,
	}, true, nil
}

// pickQuestion returns the first hit that either shares enough keywords
// with the question or already has an answer.
func pickQuestion(items []question, keywords []string) (question, bool) {
	required := max(minMatches, int(float64(len(keywords))*matchRatio))
	for _, item := range items {
		combined := htmltext.Unescape(item.Title) + " " + htmltext.Text(item.Body)
		if providers.Overlap(keywords, combined) >= required || item.IsAnswered {
			return item, item.QuestionID != 0
		}
	}
	return question{}, false
}

func bestAnswer(items []answer) (answer, bool) {
	if len(items) == 0 {
		return answer{}, false
	}
	for _, a := range items {
		if a.IsAccepted {
			return a, true
		}
	}
	best := items[0]
	for _, a := range items[1:] {
		if a.Score > best.Score {
			best = a
		}
	}
	return best, true
}

func render(q question, a answer) string {
	status := fmt.Sprintf("Score: %d", a.Score)
	if a.IsAccepted {
		status += ", Accepted"
	}
	body := htmltext.Text(a.Body)
	if body == "" {
		body = "No answer body available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", htmltext.Unescape(q.Title))
	fmt.Fprintf(&b, "Link: %s\n\n", q.Link)
	fmt.Fprintf(&b, "Best Answer (%s):\n%s", status, body)
	return b.String()
}
