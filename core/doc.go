// Package core defines the conversation data model shared by the agent loop,
// the tool subsystem and the model adapters:
//
//   - Message, a tagged variant over system / user / assistant / tool entries
//   - ToolCall and ToolResult, the model's requests and their outcomes
//   - Conversation, the immutable per-request transcript
//   - ToolContext, the scope handed to tool handlers
//
// Nothing in this package performs I/O.
package core
