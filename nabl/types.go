package nabl

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuditResult is the result of the audit workflow.
type AuditResult struct {
	URL            string  `json:"url"`
	Score          float64 `json:"score"`
	CriticalIssues int     `json:"critical_issues"`
	Warnings       int     `json:"warnings"`
	Passed         int     `json:"passed"`
	ReportURL      string  `json:"report_url"`
}

// Business is one entry of a discovery result.
type Business struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Website string  `json:"website,omitempty"`
	Address string  `json:"address,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
}

// DiscoveryResult is the result of the discovery workflow.
type DiscoveryResult struct {
	TotalFound int        `json:"total_found"`
	Businesses []Business `json:"businesses"`
}

// DiscoveryQuery holds the discovery workflow parameters.
type DiscoveryQuery struct {
	Niche    string
	Location string
	Limit    int
}

// Params returns the wire parameters of the query. A Limit of zero or less
// means "unset" and is sent as DefaultDiscoveryLimit; the discovery tool
// rejects such limits from the model before a query is built.
func (q DiscoveryQuery) Params() map[string]any {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultDiscoveryLimit
	}
	return map[string]any{"niche": q.Niche, "location": q.Location, "limit": limit}
}

// Audit runs the audit workflow through r and decodes the result.
func Audit(ctx context.Context, r Runner, url string) (*AuditResult, error) {
	raw, err := r.Run(ctx, WorkflowAudit, map[string]any{"url": url})
	if err != nil {
		return nil, err
	}

	var out AuditResult
	if err := decode(raw, &out); err != nil {
		return nil, fmt.Errorf("decode audit result: %w", err)
	}

	return &out, nil
}

// Discovery runs the discovery workflow through r and decodes the result.
func Discovery(ctx context.Context, r Runner, q DiscoveryQuery) (*DiscoveryResult, error) {
	raw, err := r.Run(ctx, WorkflowDiscovery, q.Params())
	if err != nil {
		return nil, err
	}

	var out DiscoveryResult
	if err := decode(raw, &out); err != nil {
		return nil, fmt.Errorf("decode discovery result: %w", err)
	}

	return &out, nil
}

func decode(raw map[string]any, v any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
