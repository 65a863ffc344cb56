// Package mcpadapter exposes retrieval as a Model Context Protocol tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kbretrieval/knowledge-service/internal/core/ports"
)

const (
	serverName    = "knowledge-service"
	serverVersion = "1.0.0"
	toolName      = "search_knowledge"
)

type toolResult struct {
	Found      bool    `json:"found"`
	Answer     string  `json:"answer,omitempty"`
	Source     string  `json:"source,omitempty"`
	Score      float64 `json:"score"`
	Method     string  `json:"method"`
	Confidence string  `json:"confidence"`
	SearchTime float64 `json:"search_time"`
}

type Server struct {
	retriever ports.Retriever
	mcp       *server.MCPServer
}

func NewServer(retriever ports.Retriever) *Server {
	s := &Server{
		retriever: retriever,
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.mcp.AddTool(mcp.NewTool(toolName,
		mcp.WithDescription("Answer a question from the knowledge base. Local exact, keyword and semantic search run first, then live sources."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language question")),
	), s.searchKnowledge)
	return s
}

// HTTPHandler serves the tool over streamable HTTP.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

// ServeStdio blocks serving the tool on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) searchKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	result := s.retriever.Retrieve(ctx, question)
	out := toolResult{
		Found:      result.Found(),
		Score:      result.Score,
		Method:     string(result.Method),
		Confidence: string(result.Confidence),
		SearchTime: result.SearchTime.Seconds(),
	}
	text := "No relevant information found"
	if out.Found {
		out.Answer = result.Text
		out.Source = result.Source
		text = fmt.Sprintf("%s\n\nSource: %s (method=%s, score=%.2f)", result.Text, result.Source, result.Method, result.Score)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	slog.Info("mcp_tool_call", "tool", toolName, "method", result.Method, "found", out.Found)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
			mcp.NewTextContent(string(raw)),
		},
	}, nil
}
