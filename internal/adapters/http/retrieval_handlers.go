package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/core/usecase"
)

const (
	fallbackAnswer   = "I don't have specific information about that topic in my knowledge base."
	fallbackSource   = "fallback"
	notFoundMessage  = "No relevant information found"
	searchMethodsTag = "exact + keyword + semantic"
)

type questionRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer     *string       `json:"answer"`
	Confidence float64       `json:"confidence"`
	IsFallback bool          `json:"is_fallback"`
	Method     domain.Method `json:"method"`
	Source     string        `json:"source"`
}

type searchResponse struct {
	Question   string            `json:"question"`
	Found      bool              `json:"found"`
	Answer     string            `json:"answer,omitempty"`
	Source     string            `json:"source,omitempty"`
	Score      float64           `json:"score"`
	Method     domain.Method     `json:"method,omitempty"`
	Confidence domain.Confidence `json:"confidence,omitempty"`
	SearchTime float64           `json:"search_time"`
	IsFallback bool              `json:"is_fallback"`
	Message    string            `json:"message,omitempty"`
}

type resultJSON struct {
	Text       *string           `json:"text"`
	Source     string            `json:"source,omitempty"`
	Score      float64           `json:"score"`
	Method     domain.Method     `json:"method"`
	Confidence domain.Confidence `json:"confidence"`
	SearchTime float64           `json:"search_time"`
}

type probeJSON struct {
	Found  bool    `json:"found"`
	Score  float64 `json:"score"`
	Source *string `json:"source"`
}

type debugResponse struct {
	OriginalQuestion  string     `json:"original_question"`
	CleanedQuestion   string     `json:"cleaned_question"`
	ExtractedKeywords []string   `json:"extracted_keywords"`
	ExactMatch        probeJSON  `json:"exact_match"`
	KeywordMatch      probeJSON  `json:"keyword_match"`
	SemanticMatch     probeJSON  `json:"semantic_match"`
	BestMatch         resultJSON `json:"best_match"`
}

type healthResponse struct {
	Status              string  `json:"status"`
	KnowledgeEntries    int     `json:"knowledge_entries"`
	SearchMethods       string  `json:"search_methods"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	KeywordsIndexed     int     `json:"keywords_indexed"`
	Vectors             int     `json:"vectors"`
	MissingVectors      int     `json:"missing_vectors"`
}

type knowledgeStatsResponse struct {
	TotalEntries  int               `json:"total_entries"`
	Sources       map[string]int    `json:"sources"`
	SampleEntries []domain.Document `json:"sample_entries"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result := rt.deps.Retriever.Retrieve(r.Context(), question)

	resp := chatResponse{
		Confidence: result.Score,
		Method:     result.Method,
	}
	fallback := !result.Found() || result.Score < usecase.AcceptThreshold
	if fallback {
		text := fallbackAnswer
		resp.Answer = &text
		resp.IsFallback = true
		resp.Source = fallbackSource
	} else {
		text := result.Text
		resp.Answer = &text
		resp.Source = result.Source
	}
	writeJSON(w, http.StatusOK, resp)
	rt.recordInteraction(r.Context(), question, result, fallback, time.Since(start))
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result := rt.deps.Retriever.Retrieve(r.Context(), question)

	resp := searchResponse{
		Question:   question,
		SearchTime: result.SearchTime.Seconds(),
	}
	if result.Found() {
		resp.Found = true
		resp.Answer = result.Text
		resp.Source = result.Source
		resp.Score = result.Score
		resp.Method = result.Method
		resp.Confidence = result.Confidence
	} else {
		resp.IsFallback = true
		resp.Message = notFoundMessage
	}
	writeJSON(w, http.StatusOK, resp)
	rt.recordInteraction(r.Context(), question, result, !result.Found(), time.Since(start))
}

func (rt *Router) debugMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	report := rt.deps.Retriever.Debug(r.Context(), question)
	keywords := report.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	writeJSON(w, http.StatusOK, debugResponse{
		OriginalQuestion:  report.Question,
		CleanedQuestion:   report.Cleaned,
		ExtractedKeywords: keywords,
		ExactMatch:        probeToJSON(report.Exact),
		KeywordMatch:      probeToJSON(report.Keyword),
		SemanticMatch:     probeToJSON(report.Semantic),
		BestMatch:         resultToJSON(report.Best),
	})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats := rt.deps.Reader.Health()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "ready",
		KnowledgeEntries:    stats.Documents,
		SearchMethods:       searchMethodsTag,
		ConfidenceThreshold: usecase.AcceptThreshold,
		KeywordsIndexed:     stats.KeywordsIndexed,
		Vectors:             stats.Vectors,
		MissingVectors:      stats.MissingVectors,
	})
}

func (rt *Router) knowledgeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats := rt.deps.Reader.Knowledge(sampleEntries)
	samples := stats.Samples
	if samples == nil {
		samples = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, knowledgeStatsResponse{
		TotalEntries:  stats.TotalEntries,
		Sources:       stats.Sources,
		SampleEntries: samples,
	})
}

func (rt *Router) reindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if rt.deps.Ingestor == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}
	filled, err := rt.deps.Ingestor.Reindex(r.Context())
	if err != nil {
		slog.Error("reindex_failed", "request_id", requestIDFromContext(r.Context()), "filled", filled, "error", err)
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"filled": filled})
}

// recordInteraction writes the interaction log off the request path.
func (rt *Router) recordInteraction(ctx context.Context, question string, result domain.Result, fallback bool, elapsed time.Duration) {
	if rt.deps.Interactions == nil {
		return
	}
	requestID := requestIDFromContext(ctx)
	in := domain.Interaction{
		Question:       question,
		Method:         result.Method,
		Source:         result.Source,
		Score:          result.Score,
		IsFallback:     fallback,
		ResponseTimeMS: elapsed.Milliseconds(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interactionTimeout)
		defer cancel()
		if err := rt.deps.Interactions.Record(ctx, in); err != nil {
			slog.Warn("interaction_record_failed", "request_id", requestID, "error", err)
		}
	}()
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req questionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return "", false
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return "", false
	}
	return question, true
}

func probeToJSON(p domain.TierProbe) probeJSON {
	out := probeJSON{Found: p.Found, Score: p.Score}
	if p.Found {
		src := p.Source
		out.Source = &src
	}
	return out
}

func resultToJSON(r domain.Result) resultJSON {
	out := resultJSON{
		Score:      r.Score,
		Method:     r.Method,
		Confidence: r.Confidence,
		Source:     r.Source,
		SearchTime: r.SearchTime.Seconds(),
	}
	if r.Found() {
		text := r.Text
		out.Text = &text
	}
	return out
}
