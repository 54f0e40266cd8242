package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Client is a client for OpenAI-compatible chat completions APIs.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	req     requester
}

// NewClient creates a new LLM client.
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		req:     newRequester(apiKey, opts),
	}
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
}

// ChatChoice represents a single choice in the chat response.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []ChatChoice `json:"choices"`
}

// Complete runs one chat completion and tags the result as a final answer or a tool invocation.
func (c *Client) Complete(ctx context.Context, messages []Message, params ChatParams) (Completion, error) {
	if len(messages) == 0 {
		return Completion{}, fmt.Errorf("empty message list")
	}

	model := params.Model
	if model == "" {
		model = c.Model
	}

	payload := ChatRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: params.MaxTokens,
	}
	if params.Temperature > 0 {
		temp := params.Temperature
		payload.Temperature = &temp
	}
	if len(params.Tools) > 0 {
		payload.Tools = params.Tools
		payload.ToolChoice = "auto"
	}

	var chatResp ChatResponse
	if err := c.req.do(ctx, http.MethodPost, fmt.Sprintf("%s/v1/chat/completions", c.BaseURL), payload, &chatResp); err != nil {
		return Completion{}, err
	}

	if len(chatResp.Choices) == 0 {
		return Completion{}, fmt.Errorf("no choices returned: %w", ErrMalformedResponse)
	}

	msg := chatResp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		if len(params.Tools) == 0 {
			return Completion{}, fmt.Errorf("tool call returned without tools offered: %w", ErrMalformedResponse)
		}
		return Completion{Kind: ToolInvocation, Text: msg.Content, ToolCalls: msg.ToolCalls}, nil
	}

	if strings.TrimSpace(msg.Content) == "" {
		return Completion{}, fmt.Errorf("empty answer returned: %w", ErrMalformedResponse)
	}

	return Completion{Kind: FinalAnswer, Text: msg.Content}, nil
}
