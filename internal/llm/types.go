package llm

// Chat roles understood by OpenAI-compatible servers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef is the JSON-schema description of a callable function.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	Temperature float32

	// Tools offered to the model. Empty means the model must answer directly.
	Tools []Tool
}

// CompletionKind tags what the model produced.
type CompletionKind int

const (
	// FinalAnswer means Text holds the answer for the user.
	FinalAnswer CompletionKind = iota
	// ToolInvocation means ToolCalls must be executed before the model can answer.
	ToolInvocation
)

func (k CompletionKind) String() string {
	switch k {
	case FinalAnswer:
		return "final_answer"
	case ToolInvocation:
		return "tool_invocation"
	default:
		return "unknown"
	}
}

// Completion is the tagged result of one generation call.
type Completion struct {
	Kind      CompletionKind
	Text      string
	ToolCalls []ToolCall
}
