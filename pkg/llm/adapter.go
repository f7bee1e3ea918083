package llm

import "context"

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool describes a callable function offered to the model. Schema is a JSON
// schema object (type/properties/required).
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Message is one turn of conversation history. Assistant messages may carry
// tool calls; tool messages answer a call by ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

type Context struct {
	System   string
	Messages []Message
	Tools    []Tool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

// LLMAdapter is the request/response contract to a language model.
type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}
