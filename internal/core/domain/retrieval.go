package domain

import (
	"strings"
	"time"
)

type Method string

const (
	MethodExactSource       Method = "exact_source"
	MethodExactTopic        Method = "exact_topic"
	MethodKeyword           Method = "keyword"
	MethodSemantic          Method = "semantic"
	MethodLiveStackOverflow Method = "live_stackoverflow"
	MethodLiveGitHubCode    Method = "live_github_code"
	MethodLiveWikipedia     Method = "live_wikipedia"
	MethodLiveArxiv         Method = "live_arxiv"
	MethodLiveReddit        Method = "live_reddit"
	MethodLiveYouTube       Method = "live_youtube"
	MethodNone              Method = "none"
)

func (m Method) IsLive() bool {
	return strings.HasPrefix(string(m), "live_")
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the single tagged outcome of a retrieval. Method distinguishes
// which tier produced it; MethodNone marks the terminal no-match result.
type Result struct {
	Text       string
	Source     string
	Score      float64
	Method     Method
	Confidence Confidence
	SearchTime time.Duration
}

func NoMatch() Result {
	return Result{
		Score:      0,
		Method:     MethodNone,
		Confidence: ConfidenceLow,
	}
}

func (r Result) Found() bool {
	return r.Method != MethodNone && r.Method != ""
}

// TierProbe is the outcome of running one local tier in isolation.
type TierProbe struct {
	Found  bool
	Score  float64
	Method Method
	Source string
}

func ProbeOf(r Result, found bool) TierProbe {
	if !found {
		return TierProbe{}
	}
	return TierProbe{Found: true, Score: r.Score, Method: r.Method, Source: r.Source}
}

// DebugReport explains how a question was normalized and how each local tier
// scored it, next to the orchestrated answer.
type DebugReport struct {
	Question string
	Cleaned  string
	Keywords []string
	Exact    TierProbe
	Keyword  TierProbe
	Semantic TierProbe
	Best     Result
}

// IndexStats is the health view of the index bundle.
type IndexStats struct {
	Documents       int
	KeywordsIndexed int
	Vectors         int
	MissingVectors  int
}

// KnowledgeStats summarizes corpus composition by source prefix.
type KnowledgeStats struct {
	TotalEntries int
	Sources      map[string]int
	Samples      []Document
}
