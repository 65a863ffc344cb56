package providers

import (
	"strings"
	"unicode/utf8"

	"github.com/kbretrieval/knowledge-service/internal/core/normalize"
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Overlap counts the distinct keywords that occur as words of text.
func Overlap(keywords []string, text string) int {
	words := normalize.WordSet(text)
	n := 0
	for _, kw := range normalize.Distinct(keywords) {
		if _, ok := words[kw]; ok {
			n++
		}
	}
	return n
}

// HasAny reports whether any keyword is in vocabulary.
func HasAny(keywords []string, vocabulary map[string]struct{}) bool {
	for _, kw := range keywords {
		if _, ok := vocabulary[kw]; ok {
			return true
		}
	}
	return false
}

func Vocabulary(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[strings.ToLower(w)] = struct{}{}
	}
	return out
}
