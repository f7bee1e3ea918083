package llm

import "context"

// ToolRegistry exposes tools to the model and executes the calls it makes.
// HandleTool returns the text fed back to the model; an error means the call
// itself was malformed or failed, not that the user asked for something absent.
type ToolRegistry interface {
	Tools() []Tool
	HandleTool(ctx context.Context, name string, args map[string]any) (string, error)
}
