package core

import (
	"context"

	"github.com/hupe1980/nablmesh/logging"
)

// ToolContext is the execution scope handed to a tool handler. It embeds the
// per-call context, so the invocation timeout and request cancellation reach
// the handler, and carries the originating call id and a call-scoped logger.
type ToolContext struct {
	context.Context

	callID   string
	toolName string
	logger   logging.Logger
}

// NewToolContext binds ctx to call. A nil logger discards output.
func NewToolContext(ctx context.Context, call ToolCall, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		Context:  ctx,
		callID:   call.ID,
		toolName: call.Name,
		logger:   logger,
	}
}

// Logger returns the call-scoped logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// LogInfo logs at info level.
func (tc *ToolContext) LogInfo(msg string, args ...any) { tc.logger.Info(msg, args...) }

// LogError logs at error level.
func (tc *ToolContext) LogError(msg string, args ...any) { tc.logger.Error(msg, args...) }

// FunctionCallID returns the id of the tool call being executed.
func (tc *ToolContext) FunctionCallID() string { return tc.callID }

// ToolName returns the name of the tool being executed.
func (tc *ToolContext) ToolName() string { return tc.toolName }
