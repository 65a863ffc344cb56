// Package htmltext flattens HTML fragments to readable plain text.
package htmltext

import (
	"html"
	"strings"
	"unicode"

	xhtml "golang.org/x/net/html"
)

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "pre": {}, "blockquote": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "tr": {},
	"ul": {}, "ol": {}, "table": {}, "hr": {},
}

// Text returns the text content of fragment. Block elements end a line,
// script and style content is dropped and whitespace inside <pre> is kept.
func Text(fragment string) string {
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	pre := 0
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return tidy(b.String())
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style":
				skip++
			case "pre":
				pre++
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte('\n')
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "pre":
				if pre > 0 {
					pre--
				}
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte('\n')
			}
		case xhtml.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			if pre == 0 {
				text = collapseSpace(text)
				if strings.HasPrefix(text, " ") && (b.Len() == 0 || endsWithSpace(b.String())) {
					text = text[1:]
				}
			}
			b.WriteString(text)
		}
	}
}

// Unescape decodes entities in plain strings such as API titles.
func Unescape(s string) string {
	return html.UnescapeString(s)
}

// collapseSpace folds every whitespace run to one space. Inline tags split
// text into several tokens, so a run at either edge is kept as a space and
// an edge without whitespace stays glued to its neighbour.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

func endsWithSpace(s string) bool {
	last := s[len(s)-1]
	return last == ' ' || last == '\n'
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(strings.TrimLeft(line, " "), " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
