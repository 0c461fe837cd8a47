// Package model defines the provider-agnostic abstraction the agent loop uses
// to ask a language model for its next turn.
//
// Core goals:
//   - One synchronous call per iteration: the full transcript in, one assistant message out
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//
// Providers (Anthropic, OpenAI, Gemini) live in sub packages and implement the
// Model interface so the agent loop stays decoupled from vendor SDKs. Func
// adapts a plain function for tests and stubs.
package model
