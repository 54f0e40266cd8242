package handlers

import (
	"net/http"
	"time"

	"research-agent/internal/contextutil"
	"research-agent/internal/rag"
	"research-agent/internal/service"
)

// QueryHandler answers one-shot questions.
type QueryHandler struct {
	chatService service.ChatService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(chatService service.ChatService) *QueryHandler {
	return &QueryHandler{chatService: chatService}
}

// QueryRequest represents the HTTP request payload for one-shot queries.
//
// swagger:model QueryRequest
type QueryRequest struct {
	Query          string `json:"query"`
	NResults       int    `json:"n_results,omitempty"`
	SourceDocument string `json:"source_document,omitempty"`
	SourceType     string `json:"source_type,omitempty"`
	// PublishedAfter and PublishedBefore are YYYY-MM-DD dates bounding report publication.
	PublishedAfter  string `json:"published_after,omitempty"`
	PublishedBefore string `json:"published_before,omitempty"`
}

// SourceResponse is one report excerpt used for an answer.
//
// swagger:model SourceResponse
type SourceResponse struct {
	ChunkID        string  `json:"chunk_id"`
	SourceDocument string  `json:"source_document"`
	PageNumber     int     `json:"page_number"`
	Text           string  `json:"text"`
	Distance       float64 `json:"distance"`
	RelevanceScore float64 `json:"relevance_score"`
	Citation       string  `json:"citation"`
}

// QueryResponse represents the HTTP response payload for one-shot queries.
//
// swagger:model QueryResponse
type QueryResponse struct {
	Answer              string                   `json:"answer"`
	Sources             []SourceResponse         `json:"sources"`
	ToolCalls           []service.ToolCallRecord `json:"tool_calls"`
	Declined            bool                     `json:"declined,omitempty"`
	ResponseTimeSeconds float64                  `json:"response_time_seconds"`
}

// ServeHTTP handles HTTP requests for one-shot queries.
//
// swagger:route POST /api/v1/query query
//
// # Ask a single question
//
// Answers a question from the research corpus in a fresh conversation.
// Optional filters restrict retrieval to one report, one source type or a publication window.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Answer with cited sources
//	  schema:
//	    "$ref": "#/definitions/QueryResponse"
//	'400':
//	  description: Invalid query or filters
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Language model unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	published, err := parseDateRange(req.PublishedAfter, req.PublishedBefore)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process query")
		return
	}

	reply, err := h.chatService.Query(ctx, service.QueryRequest{
		Query:    req.Query,
		NResults: req.NResults,
		Filters: rag.Filters{
			SourceDocument: req.SourceDocument,
			SourceType:     req.SourceType,
			Published:      published,
		},
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process query")
		return
	}

	writeJSON(ctx, w, http.StatusOK, QueryResponse{
		Answer:              reply.Answer,
		Sources:             toSources(reply.Sources),
		ToolCalls:           toolCalls(reply.ToolCalls),
		Declined:            reply.Declined,
		ResponseTimeSeconds: reply.Duration.Seconds(),
	})
}

func parseDateRange(after, before string) (*rag.DateRange, error) {
	if after == "" && before == "" {
		return nil, nil
	}
	var dr rag.DateRange
	if after != "" {
		t, err := time.Parse(time.DateOnly, after)
		if err != nil {
			return nil, &service.ValidationError{Field: "published_after", Message: "must be a YYYY-MM-DD date"}
		}
		dr.From = t
	}
	if before != "" {
		t, err := time.Parse(time.DateOnly, before)
		if err != nil {
			return nil, &service.ValidationError{Field: "published_before", Message: "must be a YYYY-MM-DD date"}
		}
		dr.To = t
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.From.After(dr.To) {
		return nil, &service.ValidationError{Field: "published_after", Message: "must not be after published_before"}
	}
	return &dr, nil
}

func toSources(results []rag.Result) []SourceResponse {
	out := make([]SourceResponse, len(results))
	for i, r := range results {
		out[i] = SourceResponse{
			ChunkID:        r.ChunkID,
			SourceDocument: r.SourceDocument,
			PageNumber:     r.PageNumber,
			Text:           r.Text,
			Distance:       r.Distance,
			RelevanceScore: r.Relevance(),
			Citation:       rag.Citation(r),
		}
	}
	return out
}

func toolCalls(calls []service.ToolCallRecord) []service.ToolCallRecord {
	if calls == nil {
		return []service.ToolCallRecord{}
	}
	return calls
}
