package testutil

import (
	"fmt"

	"github.com/hupe1980/nablmesh/core"
)

// TurnBuilder provides a fluent helper for constructing assistant turns in tests.
// Example:
//
//	msg := NewTurn().Text("Auditing").Call("nabl_audit", map[string]any{"url": "example.com"}).Build()
//
// Calls without an explicit id are numbered call_1, call_2, ...
type TurnBuilder struct {
	text  string
	calls []core.ToolCall
}

// NewTurn creates an empty assistant turn builder.
func NewTurn() *TurnBuilder { return &TurnBuilder{} }

// Text sets the assistant text (chainable).
func (b *TurnBuilder) Text(t string) *TurnBuilder { b.text = t; return b }

// Call appends a tool call with a generated id (chainable).
func (b *TurnBuilder) Call(name string, args map[string]any) *TurnBuilder {
	return b.CallWithID(fmt.Sprintf("call_%d", len(b.calls)+1), name, args)
}

// CallWithID appends a tool call with an explicit id (chainable).
func (b *TurnBuilder) CallWithID(id, name string, args map[string]any) *TurnBuilder {
	if args == nil {
		args = map[string]any{}
	}
	b.calls = append(b.calls, core.ToolCall{ID: id, Name: name, Arguments: args})
	return b
}

// Build returns the assistant message.
func (b *TurnBuilder) Build() core.Message {
	return core.NewAssistantMessage(b.text, b.calls...)
}
