// Package tool implements the function / tool calling subsystem: the Tool
// contract, a read-only Registry built once at startup and an Invoker that
// turns every tool call, successful or not, into a core.ToolResult the model
// can react to.
package tool

import (
	"fmt"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/internal/util"
)

// Tool is a callable capability exposed to the model.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case; providers reject spaces)
//   - Define proper JSON schema for parameters
//   - Honour toolCtx cancellation
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description is shown to the model to decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool. args have already been validated against
	// Parameters and completed with schema defaults.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Spec is the static description of a tool: name, description and parameter schema.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SpecOf returns the Spec of t.
func SpecOf(t Tool) Spec {
	return Spec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
	CodePanic      = "PANIC"
	CodeCancelled  = "CANCELLED"
)

// ToolError represents a failure while invoking a tool (malformed arguments,
// transport failure, timeout, panic). The Invoker converts it to an error
// result; it never aborts the agent loop.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// UnknownToolError is returned by Registry.Resolve for unregistered names.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("Unknown tool: %s", e.Name) }

// DuplicateToolError is returned by Registry.Register when the name is taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}
