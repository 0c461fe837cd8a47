// Package nabl is the client for the remote website-audit / business-discovery
// workflow API and the tools that expose it to a model.
//
// Every workflow is a single POST to {BaseURL}/api/v1/workflow:
//
//	{"workflow": "audit", "params": {"url": "example.com"}, "iclaw_key": "..."}
//
// answered by either {"status": "error", "error": "..."} or {"result": {...}}.
//
// Two tool flavours are provided. AuditTool and DiscoveryTool return the
// structured result mapping. WebsiteAuditTool and BusinessDiscoveryTool render
// a short text report and fold API failures into that text.
package nabl
