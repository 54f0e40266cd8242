// Package mcpserver exposes report retrieval as a Model Context Protocol tool.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"research-agent/internal/contextutil"
	"research-agent/internal/policy"
	"research-agent/internal/rag"
	"research-agent/internal/service"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingRetriever is returned when no retriever is configured.
var ErrMissingRetriever = errors.New("retriever is required")

// Server is the MCP server for the research corpus.
type Server struct {
	retriever service.Retriever
	fallback  string
	server    *mcp.Server
}

// NewServer creates a new MCP server. pol supplies the fallback message and may be nil.
func NewServer(retriever service.Retriever, pol *policy.Policy) (*Server, error) {
	if retriever == nil {
		return nil, ErrMissingRetriever
	}
	if pol == nil {
		pol = policy.Default()
	}

	s := &Server{
		retriever: retriever,
		fallback:  pol.FallbackMessage,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "research-agent",
			Version: Version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        service.SearchToolName,
		Description: "Search investment research reports (house views, SEC filings, FOMC minutes, bank outlooks). Returns excerpts with document and page citations.",
	}, s.handleSearch)

	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string `json:"query" jsonschema:"the search query, e.g. 'Fed rate path 2025'"`
	NResults       int    `json:"n_results,omitempty" jsonschema:"number of excerpts to return (1-20, default 5)"`
	SourceDocument string `json:"source_document,omitempty" jsonschema:"restrict the search to one report file name"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results   []ResultOutput `json:"results"`
	Citations []string       `json:"citations"`
	Count     int            `json:"count"`
	// Message is set when nothing relevant was found.
	Message string `json:"message,omitempty"`
}

// ResultOutput is one retrieved excerpt.
type ResultOutput struct {
	ChunkID        string  `json:"chunk_id"`
	SourceDocument string  `json:"source_document"`
	PageNumber     int     `json:"page_number"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := contextutil.LoggerFromContext(ctx).With("component", "mcp")

	if input.NResults < 0 || input.NResults > 20 {
		return nil, SearchOutput{}, fmt.Errorf("n_results must be between 1 and 20")
	}

	results, err := s.retriever.Retrieve(ctx, input.Query, input.NResults, rag.Filters{SourceDocument: input.SourceDocument})
	switch {
	case errors.Is(err, rag.ErrInvalidQuery), errors.Is(err, rag.ErrInvalidFilter):
		return nil, SearchOutput{}, err
	case err != nil:
		logger.WarnContext(ctx, "retrieval failed", "query", input.Query, "error", err)
		results = nil
	}

	output := SearchOutput{
		Results:   make([]ResultOutput, len(results)),
		Citations: rag.FormatCitations(results),
		Count:     len(results),
	}
	for i, r := range results {
		output.Results[i] = ResultOutput{
			ChunkID:        r.ChunkID,
			SourceDocument: r.SourceDocument,
			PageNumber:     r.PageNumber,
			Text:           r.Text,
			RelevanceScore: r.Relevance(),
		}
	}
	if len(results) == 0 {
		output.Message = s.fallback
	}
	return nil, output, nil
}
