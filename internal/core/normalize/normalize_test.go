package normalize

import (
	"reflect"
	"testing"
)

func TestQuestionStripsOnlyFirstFillerPrefix(t *testing.T) {
	cases := map[string]string{
		"What is Artificial Intelligence?":        "artificial intelligence",
		"  explain   machine-learning ??":         "machine learning",
		"what is explain recursion":               "explain recursion",
		"Tell me about deep_learning":             "deep learning",
		"what do you know about Neural  Networks": "neural networks",
		"quantum computing":                       "quantum computing",
		"":                                        "",
	}
	for in, want := range cases {
		if got := Question(in); got != want {
			t.Fatalf("Question(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourceKey(t *testing.T) {
	if got := SourceKey("artificial intelligence"); got != "wikipedia-artificial-intelligence" {
		t.Fatalf("unexpected source key %q", got)
	}
}

func TestKeywordsDropsStopWordsAndShortTokens(t *testing.T) {
	got := Keywords("What is the Python GIL and how does python use it?")
	want := []string{"python", "gil", "python", "use"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Keywords() = %v, want %v", got, want)
	}
	if got := Keywords("is it a an"); len(got) != 0 {
		t.Fatalf("expected no keywords, got %v", got)
	}
}

func TestDistinctKeepsFirstOccurrenceOrder(t *testing.T) {
	got := Distinct([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Distinct() = %v, want %v", got, want)
	}
}

func TestIndexWordsKeepsDistinctWordsLongerThanThree(t *testing.T) {
	got := IndexWords("The cat sat. Neural networks, neural NETWORKS and data!")
	want := []string{"neural", "networks", "data"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("IndexWords() = %v, want %v", got, want)
	}
}

func TestTopicFromSource(t *testing.T) {
	cases := map[string]string{
		"wikipedia-artificial-intelligence":                   "artificial intelligence",
		"https://en.wikipedia.org/wiki/Sigmund_Freud":         "sigmund freud",
		"https://en.wikipedia.org/wiki/C%2B%2B#History":       "c",
		"https://en.wikipedia.org/wiki/Alan_Turing?oldid=123": "alan turing",
		"reddit_search:go channels":                           "reddit search go channels",
		"custom-topic":                                        "custom topic",
		"  ":                                                  "",
		"---":                                                 "",
	}
	for in, want := range cases {
		if got := TopicFromSource(in); got != want {
			t.Fatalf("TopicFromSource(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWordSet(t *testing.T) {
	set := WordSet("Go is fun, go!")
	if len(set) != 3 {
		t.Fatalf("expected 3 distinct words, got %v", set)
	}
	if _, ok := set["go"]; !ok {
		t.Fatalf("expected lowercase word in set")
	}
}
