package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"research-agent/internal/contextutil"
	"research-agent/internal/service"
)

// ConversationHandler serves multi-turn conversations.
type ConversationHandler struct {
	chatService service.ChatService
	markdown    goldmark.Markdown
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(chatService service.ChatService) *ConversationHandler {
	return &ConversationHandler{
		chatService: chatService,
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// ConversationRequest represents the HTTP request payload for a conversation turn.
//
// swagger:model ConversationRequest
type ConversationRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Reset clears the conversation before the message is answered.
	Reset bool `json:"reset,omitempty"`
}

// ConversationResponse represents the HTTP response payload for a conversation turn.
//
// swagger:model ConversationResponse
type ConversationResponse struct {
	Response       string                   `json:"response"`
	ConversationID string                   `json:"conversation_id"`
	MessageCount   int                      `json:"message_count"`
	Sources        []SourceResponse         `json:"sources"`
	ToolCalls      []service.ToolCallRecord `json:"tool_calls"`
	Declined       bool                     `json:"declined,omitempty"`
}

// HistoryResponse lists the committed turns of a conversation.
//
// swagger:model HistoryResponse
type HistoryResponse struct {
	ConversationID string         `json:"conversation_id"`
	Turns          []service.Turn `json:"turns"`
}

// Post answers one conversation turn.
func (h *ConversationHandler) Post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Reset && req.ConversationID != "" {
		err := h.chatService.Reset(ctx, req.ConversationID)
		if err != nil && !errors.Is(err, service.ErrNotFound) {
			handleServiceError(ctx, w, err, "Failed to reset conversation")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeJSON(ctx, w, http.StatusOK, ConversationResponse{
				ConversationID: req.ConversationID,
				Sources:        []SourceResponse{},
				ToolCalls:      []service.ToolCallRecord{},
			})
			return
		}
	}

	reply, err := h.chatService.Chat(ctx, req.ConversationID, req.Message)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process conversation turn")
		return
	}

	writeJSON(ctx, w, http.StatusOK, ConversationResponse{
		Response:       reply.Answer,
		ConversationID: reply.SessionID,
		MessageCount:   reply.MessageCount,
		Sources:        toSources(reply.Sources),
		ToolCalls:      toolCalls(reply.ToolCalls),
		Declined:       reply.Declined,
	})
}

// History returns the committed turns of the conversation in the URL.
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	turns, err := h.chatService.History(ctx, id)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to load conversation")
		return
	}
	if turns == nil {
		turns = []service.Turn{}
	}
	writeJSON(ctx, w, http.StatusOK, HistoryResponse{ConversationID: id, Turns: turns})
}

// Delete clears and removes the conversation in the URL.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.chatService.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transcript renders the conversation as an HTML page.
// Tool turns are omitted; answers are rendered as Markdown.
func (h *ConversationHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	turns, err := h.chatService.History(ctx, id)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to load conversation")
		return
	}

	page, err := h.renderTranscript(id, turns)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to render transcript", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to render transcript")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (h *ConversationHandler) renderTranscript(id string, turns []service.Turn) ([]byte, error) {
	var buf bytes.Buffer
	title := html.EscapeString("Conversation " + id)
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n<h1>%s</h1>\n", title, title)

	for _, t := range turns {
		var speaker string
		switch t.Role {
		case service.RoleUser:
			speaker = "You"
		case service.RoleAssistant:
			if t.Content == "" {
				continue
			}
			speaker = "Research assistant"
		default:
			continue
		}

		fmt.Fprintf(&buf, "<section class=\"%s\">\n<h2>%s</h2>\n", t.Role, speaker)
		if !t.Timestamp.IsZero() {
			fmt.Fprintf(&buf, "<p><time>%s</time></p>\n", t.Timestamp.UTC().Format(time.RFC3339))
		}
		if err := h.markdown.Convert([]byte(t.Content), &buf); err != nil {
			return nil, fmt.Errorf("failed to render turn: %w", err)
		}
		buf.WriteString("</section>\n")
	}

	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}
