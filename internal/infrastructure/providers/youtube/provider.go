// Package youtube answers with the English caption track of the top video
// for a search.
package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/htmltext"
)

const (
	DefaultBaseURL = "https://www.youtube.com"
	Score          = 0.78
)

var videoIDPattern = regexp.MustCompile(`watch\?v=([a-zA-Z0-9_-]{11})`)

type Provider struct {
	fetch   *providers.Fetcher
	baseURL string
}

func New(opts providers.Options) *Provider {
	return &Provider{
		fetch:   providers.NewFetcher("youtube", opts),
		baseURL: DefaultBaseURL,
	}
}

func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Provider) Method() domain.Method { return domain.MethodLiveYouTube }

type transcript struct {
	Lines []string `xml:"text"`
}

func (p *Provider) Lookup(ctx context.Context, q string) (domain.LiveHit, bool, error) {
	keywords := normalize.Distinct(normalize.Keywords(q))
	if len(keywords) == 0 {
		return domain.LiveHit{}, false, nil
	}

	ctx, cancel := p.fetch.Bound(ctx)
	defer cancel()

	page, err := p.fetch.GetBody(ctx, "search", p.baseURL+"/results", url.Values{
		"search_query": {normalize.Question(q)},
	})
	if err != nil {
		return domain.LiveHit{}, false, err
	}
	m := videoIDPattern.FindSubmatch(page)
	if m == nil {
		return domain.LiveHit{}, false, nil
	}
	videoID := string(m[1])

	body, err := p.fetch.GetBody(ctx, "transcript", p.baseURL+"/api/timedtext", url.Values{
		"lang": {"en"},
		"v":    {videoID},
	})
	if err != nil {
		return domain.LiveHit{}, false, err
	}
	spoken := captionText(body)
	if spoken == "" || providers.Overlap(keywords, spoken) == 0 {
		return domain.LiveHit{}, false, nil
	}

	videoURL := "https://www.youtube.com/watch?v=" + videoID
	text := fmt.Sprintf("YouTube video transcript:\n\n%s...\n\nSource: %s",
		providers.Truncate(spoken, p.fetch.MaxText()), videoURL)
	return domain.LiveHit{
		Document:   domain.Document{Text: text, Source: videoURL},
		Score:      Score,
		Method:     domain.MethodLiveYouTube,
		Confidence: domain.ConfidenceMedium,
	}, true, nil
}

// captionText joins the caption lines of a timedtext document. An empty or
// unparsable body means the video has no English track.
func captionText(body []byte) string {
	var t transcript
	if len(body) == 0 || xml.Unmarshal(body, &t) != nil {
		return ""
	}
	parts := make([]string, 0, len(t.Lines))
	for _, line := range t.Lines {
		line = strings.Join(strings.Fields(htmltext.Unescape(line)), " ")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
