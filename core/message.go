package core

import "strings"

// Role tags a Message with its position in the conversation.
type Role string

const (
	// RoleSystem carries the instructions that seed every conversation.
	RoleSystem Role = "system"
	// RoleUser carries the caller supplied request text.
	RoleUser Role = "user"
	// RoleAssistant carries model output (text and/or tool calls).
	RoleAssistant Role = "assistant"
	// RoleTool carries the structured outcome of one tool call.
	RoleTool Role = "tool"
)

// ToolCall is a structured request, emitted by the model, naming a tool and its arguments.
// A ToolCall is never mutated after the model produced it.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"args"`
}

// ToolResult is the outcome of executing a ToolCall. Payload holds either the
// tool's structured result or, when IsError is set, an {"error": msg} mapping.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Payload    any    `json:"result"`
	IsError    bool   `json:"is_error,omitempty"`
}

// NewErrorResult builds the uniform error-as-data result for a failed call.
func NewErrorResult(call ToolCall, msg string) ToolResult {
	return ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Payload:    map[string]any{"error": msg},
		IsError:    true,
	}
}

// ErrorMessage returns the error text of an error result, or "" for a successful one.
func (r ToolResult) ErrorMessage() string {
	if !r.IsError {
		return ""
	}
	if m, ok := r.Payload.(map[string]any); ok {
		if s, ok := m["error"].(string); ok {
			return s
		}
	}
	return ""
}

// Message is one entry of the conversation transcript. It is a tagged variant:
//
//	system / user  -> Content
//	assistant      -> Content and optional ordered ToolCalls
//	tool           -> ToolResult (Content unused)
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// NewToolResultMessage wraps a ToolResult as a tool message.
func NewToolResultMessage(result ToolResult) Message {
	r := result
	return Message{Role: RoleTool, ToolResult: &r}
}

// HasToolCalls reports whether an assistant message requests tool execution.
func (m Message) HasToolCalls() bool { return m.Role == RoleAssistant && len(m.ToolCalls) > 0 }

// Text returns the trimmed text content.
func (m Message) Text() string { return strings.TrimSpace(m.Content) }
