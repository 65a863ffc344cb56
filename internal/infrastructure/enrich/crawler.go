// Package enrich grows the corpus offline by crawling Wikipedia lead
// sections breadth-first from a set of start topics.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/providers/wikipedia"
)

const (
	DefaultDepth        = 2
	DefaultMaxDocuments = 100
	DefaultMaxLinks     = 10
	DefaultSummaryLen   = 400
	DefaultEmitBatch    = 50

	sourcePrefix = "wikipedia-"
)

var citationPattern = regexp.MustCompile(`\[\d+\]`)

// PageSource returns a page's lead section and its first article links.
type PageSource interface {
	Summary(ctx context.Context, title string, maxLinks int) (wikipedia.Page, bool, error)
}

type Options struct {
	Depth        int
	MaxDocuments int
	MaxLinks     int
	SummaryLen   int
	EmitBatch    int
}

func (o Options) normalize() Options {
	if o.Depth < 0 {
		o.Depth = DefaultDepth
	}
	if o.MaxDocuments <= 0 {
		o.MaxDocuments = DefaultMaxDocuments
	}
	if o.MaxLinks <= 0 {
		o.MaxLinks = DefaultMaxLinks
	}
	if o.SummaryLen <= 0 {
		o.SummaryLen = DefaultSummaryLen
	}
	if o.EmitBatch <= 0 {
		o.EmitBatch = DefaultEmitBatch
	}
	return o
}

type Stats struct {
	Visited   int
	Collected int
	Missing   int
	Failed    int
}

type Crawler struct {
	pages PageSource
	opts  Options
}

func NewCrawler(pages PageSource, opts Options) *Crawler {
	return &Crawler{pages: pages, opts: opts.normalize()}
}

type queued struct {
	title string
	depth int
}

// Crawl visits each title at most once, never deeper than Options.Depth
// links from a start topic, and stops after MaxDocuments documents. Batches
// of documents are handed to emit as they fill; an emit error stops the
// crawl. Fetch failures of single pages are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, topics []string, emit func(context.Context, []domain.Document) error) (Stats, error) {
	var stats Stats
	visited := make(map[string]struct{})
	queue := make([]queued, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			queue = append(queue, queued{title: t})
		}
	}

	batch := make([]domain.Document, 0, c.opts.EmitBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := emit(ctx, batch)
		batch = make([]domain.Document, 0, c.opts.EmitBatch)
		return err
	}

	for len(queue) > 0 && stats.Collected < c.opts.MaxDocuments {
		if err := ctx.Err(); err != nil {
			return stats, errors.Join(err, flush())
		}
		next := queue[0]
		queue = queue[1:]

		key := strings.ToLower(next.title)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}
		stats.Visited++

		links := c.opts.MaxLinks
		if next.depth >= c.opts.Depth {
			links = 0
		}
		page, ok, err := c.pages.Summary(ctx, next.title, links)
		if err != nil {
			if ctx.Err() != nil {
				return stats, errors.Join(ctx.Err(), flush())
			}
			stats.Failed++
			slog.Warn("enrich_page_failed", "title", next.title, "error", err)
			continue
		}
		if !ok {
			stats.Missing++
			continue
		}

		text := CleanSummary(page.Extract, c.opts.SummaryLen)
		if text != "" {
			batch = append(batch, domain.Document{Text: text, Source: SourceFor(next.title)})
			stats.Collected++
			if len(batch) >= c.opts.EmitBatch {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}

		if next.depth < c.opts.Depth {
			for _, link := range page.Links {
				if _, seen := visited[strings.ToLower(link)]; !seen {
					queue = append(queue, queued{title: link, depth: next.depth + 1})
				}
			}
		}
	}
	return stats, flush()
}

// SourceFor is the synthetic source tag of a crawled article, the form the
// exact-source tier looks up.
func SourceFor(title string) string {
	slug := strings.NewReplacer(" ", "-", "_", "-").Replace(strings.ToLower(strings.TrimSpace(title)))
	return sourcePrefix + slug
}

// CleanSummary strips citation markers, collapses whitespace and, when the
// text is longer than maxLen runes, keeps whole sentences that fit followed
// by "...".
func CleanSummary(text string, maxLen int) string {
	text = citationPattern.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	sentences := strings.Split(text, ". ")
	kept := make([]string, 0, len(sentences))
	total := 0
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if total+n >= maxLen-3 {
			break
		}
		kept = append(kept, s)
		total += n + 1
	}
	return strings.TrimSpace(strings.Join(kept, ". ") + "...")
}
