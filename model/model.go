package model

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hupe1980/nablmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// NewToolDefinition builds a function tool definition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Request is the full conversation so far plus the tools the model may call.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the single assistant turn produced by one Generate call.
type Response struct {
	ID           string       `json:"id"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the opaque language model the agent loop talks to. Generate must
// return an assistant message; any transport or provider failure is returned
// as an error and is terminal for the request.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Func adapts a plain function to the Model interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Generate implements Model.
func (f Func) Generate(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

// Info implements Model.
func (f Func) Info() Info { return Info{Name: "func", Provider: "local", SupportsTools: true} }

// NewCallID returns a fresh identifier for providers that do not assign tool call ids.
func NewCallID() string { return "call_" + uuid.NewString() }

// ErrNoChoices is returned when a provider answers without any candidate.
var ErrNoChoices = errors.New("model returned no choices")
