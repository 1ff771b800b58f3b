package tools

import (
	"context"
	"encoding/json"

	"github.com/ami-agent/ami/pkg/engine"
)

// Tool is the interface every capability implements. Execute never returns a
// Go error across this boundary: faults become human-readable ToolResult
// text so the model can read and react to them.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *ToolResult
}

// ClosableTool is an optional interface for tools holding runtime resources
// that need explicit teardown on shutdown.
type ClosableTool interface {
	Tool
	Close() error
}

// ToolResult is the uniform outcome of a capability invocation.
type ToolResult struct {
	// ForLLM is the text fed back to the engine as the tool-result message.
	ForLLM string
	// IsError marks the result as a reported failure (still text, never a
	// propagated exception).
	IsError bool
	// Err carries the underlying error for logging. Never shown raw to the
	// engine unless ForLLM is empty.
	Err error
}

func TextResult(text string) *ToolResult {
	return &ToolResult{ForLLM: text}
}

func ErrorResult(text string) *ToolResult {
	return &ToolResult{ForLLM: text, IsError: true}
}

func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}

// ToolToSchema renders a tool as the engine-facing catalog entry.
func ToolToSchema(tool Tool) engine.ToolDefinition {
	return engine.ToolDefinition{
		Type: "function",
		Function: engine.ToolFunctionDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		},
	}
}

// DecodeArgs maps loosely-typed invocation arguments onto a typed args
// struct through a JSON round trip.
func DecodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
