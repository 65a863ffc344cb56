// Package normalize turns free-form questions and document sources into the
// canonical strings the lexical indexes are keyed on.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Filler prefixes are tried in this order and only the first match is removed.
var fillerPrefixes = []string{
	"what is ",
	"explain ",
	"tell me about ",
	"define ",
	"what are ",
	"how does ",
	"describe ",
	"what do you know about ",
}

var stopWords = toSet(
	"what", "is", "are", "the", "a", "an", "about", "explain", "define",
	"tell", "me", "of", "and", "or", "but", "in", "on", "at", "to", "for",
	"with", "by", "from", "as", "into", "like", "through", "after", "over",
	"between", "out", "against", "during", "without", "before", "under",
	"around", "among", "can", "could", "would", "should", "will", "shall",
	"may", "might", "must", "have", "has", "had", "do", "does", "did",
	"am", "was", "were", "be", "been", "being", "i", "you",
	"he", "she", "it", "we", "they", "my", "your", "his", "her", "its",
	"our", "their", "mine", "yours", "hers", "ours", "theirs", "this",
	"that", "these", "those", "who", "whom", "which", "whose", "where",
	"when", "why", "how", "all", "any", "both", "each", "few", "more",
	"most", "other", "some", "such", "no", "nor", "not", "only", "own",
	"same", "so", "than", "too", "very", "just", "now", "then", "here",
	"there",
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

const (
	wikipediaKeyPrefix = "wikipedia-"
	wikipediaURLMarker = "wikipedia.org/wiki/"

	minKeywordRunes   = 3
	minIndexWordRunes = 4
)

// Question lowercases and trims q, strips the first matching filler prefix
// and trailing question marks, collapses whitespace and maps '-' and '_' to
// spaces.
func Question(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	for _, prefix := range fillerPrefixes {
		if strings.HasPrefix(q, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			break
		}
	}
	q = strings.TrimRight(q, "?")
	q = strings.Join(strings.Fields(q), " ")
	return strings.NewReplacer("-", " ", "_", " ").Replace(q)
}

// SourceKey is the exact-source key a cleaned question maps to.
func SourceKey(cleaned string) string {
	return wikipediaKeyPrefix + strings.ReplaceAll(cleaned, " ", "-")
}

// Keywords returns the meaningful tokens of q in order of first occurrence.
// Duplicates are kept; stop words and tokens shorter than three runes are not.
func Keywords(q string) []string {
	tokens := wordPattern.FindAllString(strings.ToLower(q), -1)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minKeywordRunes {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Distinct drops repeated entries and keeps first-occurrence order.
func Distinct(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// IndexWords returns the distinct lowercase words of text longer than three
// runes, the vocabulary a document is keyword-indexed under.
func IndexWords(text string) []string {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minIndexWordRunes {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// WordSet is the set form of IndexWords without the length filter.
func WordSet(text string) map[string]struct{} {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		out[tok] = struct{}{}
	}
	return out
}

// TopicFromSource derives the topic a document is indexed under from its
// source tag. Synthetic "wikipedia-<slug>" keys and Wikipedia article URLs
// yield the article title; anything else is used as-is with separators
// replaced. The result is empty when nothing alphanumeric remains.
func TopicFromSource(src string) string {
	s := strings.ToLower(strings.TrimSpace(src))
	switch {
	case strings.HasPrefix(s, wikipediaKeyPrefix):
		s = strings.TrimPrefix(s, wikipediaKeyPrefix)
	case strings.Contains(s, wikipediaURLMarker):
		s = s[strings.Index(s, wikipediaURLMarker)+len(wikipediaURLMarker):]
		if i := strings.IndexAny(s, "#?"); i >= 0 {
			s = s[:i]
		}
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = strings.ToLower(unescaped)
		}
	}
	return collapseNonAlnum(s)
}

func collapseNonAlnum(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
