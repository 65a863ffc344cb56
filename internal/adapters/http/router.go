package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kbretrieval/knowledge-service/internal/config"
	"github.com/kbretrieval/knowledge-service/internal/core/ports"
	"github.com/kbretrieval/knowledge-service/internal/observability/metrics"
)

const (
	maxRequestBytes    = 1 << 20
	interactionTimeout = 5 * time.Second
	sampleEntries      = 3
)

type Dependencies struct {
	Retriever    ports.Retriever
	Reader       ports.KnowledgeReader
	Ingestor     ports.KnowledgeIngestor
	Interactions ports.InteractionLog
	Metrics      *metrics.HTTPServerMetrics
	MCP          http.Handler
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

// Handler serves the retrieval API. Traffic control applies to the question
// endpoints only; health, stats and metrics stay reachable under load.
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/chat", rt.chat)
	api.HandleFunc("/search", rt.search)
	api.HandleFunc("/debug-match", rt.debugMatch)
	if rt.deps.MCP != nil {
		api.Handle("/mcp", rt.deps.MCP)
		api.Handle("/mcp/", rt.deps.MCP)
	}

	var limited http.Handler = api
	limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, rt.cfg.APIInFlightWait)
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.Handle("/", limited)
	mux.HandleFunc("/health", rt.health)
	mux.HandleFunc("/knowledge-stats", rt.knowledgeStats)
	mux.HandleFunc("/admin/reindex", rt.reindex)
	if rt.deps.Metrics != nil {
		mux.Handle("/metrics", rt.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
