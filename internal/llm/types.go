// Package llm provides the inference backend client.
package llm

import "context"

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message for the backend.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
// OpenAI-compatible backends send arguments as a JSON string, not an
// object.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is the response from a completion call.
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage, when the backend reports it.
	InputTokens  int
	OutputTokens int
}

// Client is the interface the session engine uses to reach the
// inference backend.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// Tool schemas, when non-empty, are offered to the model.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
