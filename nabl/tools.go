package nabl

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/tool"
)

// DefaultDiscoveryLimit is the discovery limit applied when the model omits one.
const DefaultDiscoveryLimit = 50

// Tool names.
const (
	AuditToolName             = "nabl_audit"
	DiscoveryToolName         = "nabl_discovery"
	WebsiteAuditToolName      = "website_audit"
	BusinessDiscoveryToolName = "business_discovery"
)

type auditArgs struct {
	URL string `json:"url" description:"The website URL or domain to audit"`
}

type discoveryArgs struct {
	Niche    string `json:"niche" description:"Business category, e.g. plumbers"`
	Location string `json:"location" description:"City or region, e.g. Denver, CO"`
	Limit    int    `json:"limit,omitempty" description:"Maximum number of businesses to return" default:"50" minimum:"1"`
}

// AuditTool exposes the audit workflow; the tool result is the workflow's
// result mapping.
func AuditTool(r Runner) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		AuditToolName,
		"Run a comprehensive website audit. Use this when asked to check, audit, or analyze a website.",
		auditArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			url, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			return r.Run(tc, WorkflowAudit, map[string]any{"url": url})
		},
	)
}

// DiscoveryTool exposes the discovery workflow; the tool result is the
// workflow's result mapping.
func DiscoveryTool(r Runner) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		DiscoveryToolName,
		"Find businesses by niche and location. Use this when asked to find, discover, or search for businesses.",
		discoveryArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			niche, err := stringArg(args, "niche")
			if err != nil {
				return nil, err
			}
			location, err := stringArg(args, "location")
			if err != nil {
				return nil, err
			}
			return r.Run(tc, WorkflowDiscovery, DiscoveryQuery{
				Niche:    niche,
				Location: location,
				Limit:    intArg(args, "limit", DefaultDiscoveryLimit),
			}.Params())
		},
	)
}

// WebsiteAuditTool renders the audit as a short text report. An error status
// reported by the workflow API is folded into the text ("Audit failed: ...");
// transport failures, timeouts and non-2xx responses fail the call.
func WebsiteAuditTool(r Runner) tool.Tool {
	return tool.NewFunctionTool(
		WebsiteAuditToolName,
		"Run a comprehensive website audit. Input should be a website URL.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The website URL to audit"},
			},
			"required": []string{"url"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			url, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			data, err := r.Run(tc, WorkflowAudit, map[string]any{"url": url})
			if err != nil {
				if msg, ok := apiFailure(err); ok {
					return "Audit failed: " + msg, nil
				}
				return nil, err
			}
			return FormatAudit(data), nil
		},
	)
}

// BusinessDiscoveryTool takes a single "niche|location" query and renders up
// to five businesses as text. A malformed query is answered with a usage hint.
// Failures are handled as in WebsiteAuditTool.
func BusinessDiscoveryTool(r Runner) tool.Tool {
	return tool.NewFunctionTool(
		BusinessDiscoveryToolName,
		"Find businesses by niche and location. Input format: 'niche|location' (e.g., 'plumbers|Denver, CO')",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "niche|location"},
			},
			"required": []string{"query"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			niche, location, ok := ParseQuery(query)
			if !ok {
				return "Invalid format. Use: 'niche|location'", nil
			}
			data, err := r.Run(tc, WorkflowDiscovery, DiscoveryQuery{Niche: niche, Location: location, Limit: 10}.Params())
			if err != nil {
				if msg, ok := apiFailure(err); ok {
					return "Discovery failed: " + msg, nil
				}
				return nil, err
			}
			return FormatDiscovery(niche, location, data), nil
		},
	)
}

// ParseQuery splits a "niche|location" query. Exactly one separator is required.
func ParseQuery(query string) (niche, location string, ok bool) {
	parts := strings.Split(query, "|")
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// FormatAudit renders an audit result mapping as text.
func FormatAudit(data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Audit Results for %s:\n", field(data, "url"))
	fmt.Fprintf(&b, "- Overall Score: %s/100\n", field(data, "score"))
	fmt.Fprintf(&b, "- Critical Issues: %s\n", field(data, "critical_issues"))
	fmt.Fprintf(&b, "- Warnings: %s\n", field(data, "warnings"))
	fmt.Fprintf(&b, "- Passed: %s\n", field(data, "passed"))
	fmt.Fprintf(&b, "- Report: %s\n", field(data, "report_url"))
	return b.String()
}

// FormatDiscovery renders a discovery result mapping as text, listing at most
// five businesses.
func FormatDiscovery(niche, location string, data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %s %s businesses in %s:\n\n", field(data, "total_found"), niche, location)

	businesses, _ := data["businesses"].([]any)
	for i, raw := range businesses {
		if i == 5 {
			break
		}
		biz, _ := raw.(map[string]any)
		fmt.Fprintf(&b, "%d. %s\n", i+1, field(biz, "name"))
		if phone, _ := biz["phone"].(string); phone != "" {
			fmt.Fprintf(&b, "   Phone: %s\n", phone)
		}
		if website, _ := biz["website"].(string); website != "" {
			fmt.Fprintf(&b, "   Website: %s\n", website)
		}
	}

	return b.String()
}

// field renders a result value for text output; missing values read "n/a".
func field(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return "n/a"
	}
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// apiFailure returns the message of an error envelope from the workflow API.
func apiFailure(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message, true
	}
	return "", false
}

func stringArg(args map[string]any, key string) (string, error) {
	s, _ := args[key].(string)
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

// intArg reads an integer argument; JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
