// Package server exposes an agent over HTTP.
//
// Routes:
//
//	POST /chat    {"message": "...", "user_id": "..."} -> {"response": "...", "tool_results": [...]}
//	GET  /health  {"status": "healthy", "framework": "<name>"}
//
// Every request gets an X-Request-ID, an access log entry and an
// otelhttp server span. Chat requests run under a per-request timeout.
package server
