package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks research-agent/internal/service Generator
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_retriever.go -package=mocks research-agent/internal/service Retriever
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService research-agent/internal/service ChatService

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"research-agent/internal/contextutil"
	"research-agent/internal/llm"
	"research-agent/internal/metrics"
	"research-agent/internal/policy"
	"research-agent/internal/rag"
)

// Generator produces the next completion for a conversation.
// This interface is defined from the service layer's perspective (consumer-first).
type Generator interface {
	Complete(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.Completion, error)
}

// Retriever finds report excerpts relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filters rag.Filters) ([]rag.Result, error)
}

// ToolCallRecord summarizes one retrieval performed while answering.
type ToolCallRecord struct {
	Tool           string `json:"tool"`
	Query          string `json:"query"`
	NResults       int    `json:"n_results"`
	SourceDocument string `json:"source_document,omitempty"`
	ResultCount    int    `json:"result_count"`
}

// Reply is the outcome of one resolved turn.
type Reply struct {
	SessionID    string
	Answer       string
	Sources      []rag.Result
	Citations    []string
	ToolCalls    []ToolCallRecord
	MessageCount int
	Declined     bool
	Duration     time.Duration
}

// QueryRequest is a one-shot question answered in a fresh session.
type QueryRequest struct {
	Query    string
	NResults int
	Filters  rag.Filters
}

// ChatService answers questions over the research corpus.
type ChatService interface {
	// Chat resolves one user turn in the given session, creating it if needed.
	Chat(ctx context.Context, sessionID, message string) (Reply, error)
	// Query answers a single question without keeping any state.
	Query(ctx context.Context, req QueryRequest) (Reply, error)
	// History returns the committed turns of a session.
	History(ctx context.Context, sessionID string) ([]Turn, error)
	// Reset clears a session's turns and keeps the session.
	Reset(ctx context.Context, sessionID string) error
	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error
}

// Config tunes the conversation loop.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float32
	// MaxToolIterations bounds generation rounds that may call tools.
	MaxToolIterations int
	// MaxHistoryTurns bounds the committed turns per session.
	MaxHistoryTurns int
	// GenerationTimeout bounds each generator call. Zero means none.
	GenerationTimeout time.Duration
	// ContextTurns is how many earlier user turns are folded into retrieval queries.
	ContextTurns int
	// DefaultK is used when the model does not ask for a result count.
	DefaultK     int
	SystemPrompt string
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:       0.2,
		MaxToolIterations: 4,
		MaxHistoryTurns:   40,
		GenerationTimeout: 60 * time.Second,
		ContextTurns:      2,
		DefaultK:          5,
		SystemPrompt:      DefaultSystemPrompt,
	}
}

// chatService implements ChatService.
type chatService struct {
	generator Generator
	retriever Retriever
	sessions  *SessionStore
	policy    *policy.Policy
	cfg       Config
	metrics   *metrics.Metrics
}

// NewChatService creates a new ChatService. pol defaults to policy.Default(); m may be nil.
func NewChatService(generator Generator, retriever Retriever, sessions *SessionStore, pol *policy.Policy, cfg Config, m *metrics.Metrics) ChatService {
	if pol == nil {
		pol = policy.Default()
	}
	if sessions == nil {
		sessions = NewSessionStore()
	}
	if cfg.MaxToolIterations < 1 {
		cfg.MaxToolIterations = 1
	}
	if cfg.DefaultK < 1 {
		cfg.DefaultK = 5
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &chatService{
		generator: generator,
		retriever: retriever,
		sessions:  sessions,
		policy:    pol,
		cfg:       cfg,
		metrics:   m,
	}
}

// Chat resolves one user turn.
func (s *chatService) Chat(ctx context.Context, sessionID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, &ValidationError{Field: "message", Message: "cannot be empty"}
	}

	sess, created := s.sessions.GetOrCreate(sessionID)
	if created {
		s.metrics.SetActiveSessions(s.sessions.Len())
	}
	ctx = contextutil.WithSessionID(ctx, sess.ID)

	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	sess.setState(Generating)
	defer sess.setState(Idle)

	reply, turns, err := s.runTurn(ctx, sess.Turns(), message, toolScope{})
	if err != nil {
		return Reply{}, err
	}

	turns = trimHistory(turns, s.cfg.MaxHistoryTurns)
	sess.commit(turns)

	reply.SessionID = sess.ID
	reply.MessageCount = len(turns)
	return reply, nil
}

// Query answers in a throwaway session scoped by the request filters.
func (s *chatService) Query(ctx context.Context, req QueryRequest) (Reply, error) {
	question := strings.TrimSpace(req.Query)
	if question == "" {
		return Reply{}, &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if req.NResults < 0 || req.NResults > 20 {
		return Reply{}, &ValidationError{Field: "n_results", Message: "must be between 1 and 20"}
	}
	if err := req.Filters.Validate(); err != nil {
		return Reply{}, err
	}

	reply, turns, err := s.runTurn(ctx, nil, question, toolScope{k: req.NResults, filters: req.Filters})
	if err != nil {
		return Reply{}, err
	}
	reply.MessageCount = len(turns)
	return reply, nil
}

// History returns the committed turns.
func (s *chatService) History(_ context.Context, sessionID string) ([]Turn, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Turns(), nil
}

// Reset clears the turns once any in-flight turn has finished.
func (s *chatService) Reset(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()
	sess.clear()
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "session cleared", "session_id", sessionID)
	return nil
}

// Delete removes the session.
func (s *chatService) Delete(ctx context.Context, sessionID string) error {
	if !s.sessions.Delete(sessionID) {
		return ErrNotFound
	}
	s.metrics.SetActiveSessions(s.sessions.Len())
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "session deleted", "session_id", sessionID)
	return nil
}

// toolScope constrains retrievals made on behalf of the model.
type toolScope struct {
	k       int
	filters rag.Filters
}

// turnState accumulates what happened while resolving one turn.
type turnState struct {
	working    []Turn
	sources    []rag.Result
	seen       map[string]bool
	toolCalls  []ToolCallRecord
	retrievals int
	hits       int
}

// runTurn resolves message against history and returns the reply and the new turn list.
// history is never modified.
func (s *chatService) runTurn(ctx context.Context, history []Turn, message string, scope toolScope) (Reply, []Turn, error) {
	start := time.Now()
	logger := contextutil.LoggerFromContext(ctx).With("component", "conversation")

	st := &turnState{
		working: append(make([]Turn, 0, len(history)+4), history...),
		seen:    make(map[string]bool),
	}
	st.working = append(st.working, Turn{Role: RoleUser, Content: message, Timestamp: time.Now()})

	if s.policy.IsForwardLookingPrediction(message) {
		s.metrics.ObservePolicyAction(metrics.PolicyDeclined)
		logger.InfoContext(ctx, "declined forward-looking prediction", "query", message)
		answer := s.policy.DeclineMessage
		st.working = append(st.working, Turn{Role: RoleAssistant, Content: answer, Timestamp: time.Now()})
		return Reply{Answer: answer, Declined: true, Sources: []rag.Result{}, Citations: []string{}, Duration: time.Since(start)}, st.working, nil
	}

	messages := s.buildMessages(st.working)
	tools := []llm.Tool{searchTool()}

	var answer string
	for iter := 0; ; iter++ {
		offered := tools
		if iter >= s.cfg.MaxToolIterations {
			offered = nil
		}

		comp, err := s.generate(ctx, messages, offered)
		if err != nil {
			logger.ErrorContext(ctx, "generation failed", "query", message, "iteration", iter, "error", err)
			return Reply{}, nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}

		if comp.Kind == llm.FinalAnswer {
			answer = comp.Text
			break
		}
		if offered == nil {
			logger.ErrorContext(ctx, "model requested tools after the iteration bound", "query", message, "iteration", iter)
			return Reply{}, nil, fmt.Errorf("%w: tool calls exceeded %d iterations", ErrGenerationFailed, s.cfg.MaxToolIterations)
		}

		assistant := Turn{Role: RoleAssistant, Content: comp.Text, ToolCalls: comp.ToolCalls, Timestamp: time.Now()}
		st.working = append(st.working, assistant)
		messages = append(messages, toMessage(assistant))

		for _, call := range comp.ToolCalls {
			content := s.executeTool(ctx, st, call, scope)
			toolTurn := Turn{
				Role:       RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				ToolName:   call.Function.Name,
				Timestamp:  time.Now(),
			}
			st.working = append(st.working, toolTurn)
			messages = append(messages, toMessage(toolTurn))
		}
	}

	switch {
	case st.retrievals > 0 && st.hits == 0:
		answer = s.policy.FallbackMessage
	case s.policy.NeedsDisclaimer(answer):
		answer = s.enforceDisclaimer(ctx, messages, answer)
	}

	st.working = append(st.working, Turn{Role: RoleAssistant, Content: answer, Timestamp: time.Now()})

	logger.InfoContext(ctx, "turn resolved",
		"tool_calls", len(st.toolCalls),
		"sources", len(st.sources),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	sources := st.sources
	if sources == nil {
		sources = []rag.Result{}
	}
	return Reply{
		Answer:    answer,
		Sources:   sources,
		Citations: rag.FormatCitations(sources),
		ToolCalls: st.toolCalls,
		Duration:  time.Since(start),
	}, st.working, nil
}

// enforceDisclaimer regenerates once with a reminder and injects the disclaimer if it is still missing.
func (s *chatService) enforceDisclaimer(ctx context.Context, messages []llm.Message, answer string) string {
	logger := contextutil.LoggerFromContext(ctx).With("component", "policy")
	logger.WarnContext(ctx, "answer rejected", "error", ErrPolicyViolation, "reason", "missing disclaimer")
	s.metrics.ObservePolicyAction(metrics.PolicyDisclaimerRewrite)

	retry := append(append([]llm.Message(nil), messages...),
		llm.Message{Role: llm.RoleAssistant, Content: answer},
		llm.Message{Role: llm.RoleUser, Content: s.policy.DisclaimerReminder + s.policy.Disclaimer},
	)
	comp, err := s.generate(ctx, retry, nil)
	if err == nil && comp.Kind == llm.FinalAnswer && strings.TrimSpace(comp.Text) != "" {
		if !s.policy.NeedsDisclaimer(comp.Text) {
			return comp.Text
		}
		answer = comp.Text
	} else if err != nil {
		logger.WarnContext(ctx, "disclaimer regeneration failed", "error", err)
	}

	s.metrics.ObservePolicyAction(metrics.PolicyDisclaimerInjected)
	return s.policy.EnsureDisclaimer(answer)
}

func (s *chatService) generate(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Completion, error) {
	if s.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	comp, err := s.generator.Complete(ctx, messages, llm.ChatParams{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Tools:       tools,
	})
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.ObserveGeneration(outcome, time.Since(start))
	return comp, err
}

// executeTool runs one tool call and returns the content handed back to the model.
// Failures become text for the model; they never abort the turn.
func (s *chatService) executeTool(ctx context.Context, st *turnState, call llm.ToolCall, scope toolScope) string {
	logger := contextutil.LoggerFromContext(ctx).With("component", "tools")
	s.metrics.ObserveToolCall(call.Function.Name)

	if call.Function.Name != SearchToolName {
		logger.WarnContext(ctx, "unknown tool requested", "tool", call.Function.Name)
		return fmt.Sprintf("Error: unknown tool %q", call.Function.Name)
	}

	var args searchArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		logger.WarnContext(ctx, "invalid tool arguments", "arguments", call.Function.Arguments, "error", err)
		return "Error: the search tool requires a non-empty \"query\" argument."
	}

	k := args.NResults
	if k < 1 {
		k = scope.k
	}
	if k < 1 {
		k = s.cfg.DefaultK
	}
	filters := scope.filters
	if filters.SourceDocument == "" {
		filters.SourceDocument = args.SourceDocument
	}

	query := s.retrievalQuery(st.working, args.Query)
	results, err := s.retriever.Retrieve(ctx, query, k, filters)
	st.retrievals++
	record := ToolCallRecord{Tool: SearchToolName, Query: args.Query, NResults: k, SourceDocument: filters.SourceDocument}

	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "query", query, "error", err)
		st.toolCalls = append(st.toolCalls, record)
		if errors.Is(err, rag.ErrInvalidFilter) {
			return "Error: " + err.Error()
		}
		return s.policy.FallbackMessage
	}

	record.ResultCount = len(results)
	st.toolCalls = append(st.toolCalls, record)
	if len(results) == 0 {
		return s.policy.FallbackMessage
	}

	st.hits++
	for _, r := range results {
		if !st.seen[r.ChunkID] {
			st.seen[r.ChunkID] = true
			st.sources = append(st.sources, r)
		}
	}
	return rag.FormatFindings(results)
}

// retrievalQuery folds the latest earlier user turns into the tool query so
// follow-ups like "what are the risks to that view" keep their subject.
func (s *chatService) retrievalQuery(working []Turn, toolQuery string) string {
	if s.cfg.ContextTurns <= 0 {
		return toolQuery
	}

	// working ends with the current user turn plus any tool exchanges; skip it.
	current := -1
	for i := len(working) - 1; i >= 0; i-- {
		if working[i].Role == RoleUser {
			current = i
			break
		}
	}

	var prior []string
	for i := current - 1; i >= 0 && len(prior) < s.cfg.ContextTurns; i-- {
		if working[i].Role == RoleUser {
			prior = append(prior, working[i].Content)
		}
	}
	if len(prior) == 0 {
		return toolQuery
	}

	parts := make([]string, 0, len(prior)+1)
	for i := len(prior) - 1; i >= 0; i-- {
		parts = append(parts, prior[i])
	}
	parts = append(parts, toolQuery)
	return strings.Join(parts, "\n")
}

func (s *chatService) buildMessages(turns []Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.cfg.SystemPrompt + s.policy.Disclaimer})
	for _, t := range turns {
		messages = append(messages, toMessage(t))
	}
	return messages
}

func toMessage(t Turn) llm.Message {
	return llm.Message{
		Role:       t.Role,
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		ToolCalls:  t.ToolCalls,
	}
}
