package core

import (
	"fmt"
	"slices"
)

// Conversation is the accumulating record of one user request. It is an
// immutable value: every transition returns a new Conversation built by
// copy-with-append, the receiver is never modified. A Conversation is owned
// by exactly one in-flight request and discarded once the response is sent.
type Conversation struct {
	messages []Message
	pending  []ToolCall
	results  []ToolResult
}

// NewConversation seeds a conversation with the system prompt and the user message.
func NewConversation(systemPrompt, userMessage string) Conversation {
	msgs := make([]Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, NewSystemMessage(systemPrompt))
	}
	msgs = append(msgs, NewUserMessage(userMessage))
	return Conversation{messages: msgs}
}

// Messages returns a copy of the transcript in chronological order.
func (c Conversation) Messages() []Message { return slices.Clone(c.messages) }

// Len returns the number of messages in the transcript.
func (c Conversation) Len() int { return len(c.messages) }

// PendingToolCalls returns the tool calls of the latest assistant message that
// have not been answered yet.
func (c Conversation) PendingToolCalls() []ToolCall { return slices.Clone(c.pending) }

// LastToolResults returns the result batch of the latest tool round.
func (c Conversation) LastToolResults() []ToolResult { return slices.Clone(c.results) }

// WithAssistant appends a model response. Its tool calls become the pending
// batch; the previous result batch is cleared so results never leak into a
// later iteration.
func (c Conversation) WithAssistant(msg Message) (Conversation, error) {
	if msg.Role != RoleAssistant {
		return c, fmt.Errorf("conversation: expected assistant message, got %q", msg.Role)
	}
	if len(c.pending) > 0 {
		return c, fmt.Errorf("conversation: %d tool calls still pending", len(c.pending))
	}
	return Conversation{
		messages: append(slices.Clone(c.messages), msg),
		pending:  slices.Clone(msg.ToolCalls),
	}, nil
}

// WithToolResults appends one tool message per result. Results must answer the
// pending calls one-to-one and in emission order.
func (c Conversation) WithToolResults(results []ToolResult) (Conversation, error) {
	if len(results) != len(c.pending) {
		return c, fmt.Errorf("conversation: got %d tool results for %d pending calls", len(results), len(c.pending))
	}
	msgs := slices.Clone(c.messages)
	for i, r := range results {
		if r.ToolCallID != c.pending[i].ID {
			return c, fmt.Errorf("conversation: tool result %d answers %q, expected %q", i, r.ToolCallID, c.pending[i].ID)
		}
		msgs = append(msgs, NewToolResultMessage(r))
	}
	return Conversation{
		messages: msgs,
		results:  slices.Clone(results),
	}, nil
}

// LastAssistant returns the most recent assistant message, if any.
func (c Conversation) LastAssistant() (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// ToolResults returns every tool result recorded in the transcript, across all
// iterations, in the order they were appended.
func (c Conversation) ToolResults() []ToolResult {
	var out []ToolResult
	for _, m := range c.messages {
		if m.Role == RoleTool && m.ToolResult != nil {
			out = append(out, *m.ToolResult)
		}
	}
	return out
}
