package engine

import "strings"

// Part is one typed segment of a message body. Text parts carry the text
// itself; media parts carry only an opaque reference (the bytes are never
// persisted, matching the history document format).
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

const (
	PartText  = "text"
	PartImage = "image"
	PartFile  = "file"
)

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(fileType string) Part {
	return Part{Type: PartImage, FileType: fileType}
}

// ChatMessage is one turn unit in the conversation submitted to the engine.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    []Part     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Text flattens the message's text parts into one string.
func (m ChatMessage) Text() string {
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func TextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: []Part{TextPart(text)}}
}

// ToolCall is an already-issued call attached to an assistant message.
// Arguments is the raw JSON string as the wire protocol carries it.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolRequest is a decoded tool-invocation request emitted by the engine
// during a turn.
type ToolRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes one capability in the catalog presented to the
// engine.
type ToolDefinition struct {
	Type     string                 `json:"type"`
	Function ToolFunctionDefinition `json:"function"`
}

type ToolFunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatResponse is the terminal result of one engine call: the accumulated
// assistant text and any tool-invocation requests, in the order requested.
type ChatResponse struct {
	Content      string
	ToolRequests []ToolRequest
}

// Params are the inference parameters for one engine call.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// FragmentFunc receives streamed text fragments as they arrive. Fragments are
// forwarded to the output boundary only; persistence sees whole messages.
type FragmentFunc func(fragment string)
