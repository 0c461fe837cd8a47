package nabl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/nablmesh/logging"
)

const (
	// DefaultBaseURL is the public workflow API endpoint.
	DefaultBaseURL = "https://api.iclaw.dev"
	// DefaultTimeout bounds a single workflow request.
	DefaultTimeout = 120 * time.Second

	workflowPath = "/api/v1/workflow"
	maxErrorBody = 512
)

// Workflow names understood by the API.
const (
	WorkflowAudit     = "audit"
	WorkflowDiscovery = "discovery"
)

// Runner executes a named workflow. *Client implements it; tests substitute stubs.
type Runner interface {
	Run(ctx context.Context, workflow string, params map[string]any) (map[string]any, error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default instrumented client. Timeout is ignored
	// when set.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client talks to the workflow API. It is safe for concurrent use.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// NewClient creates a workflow API client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{opts: opts, httpClient: httpClient}
}

type workflowRequest struct {
	Workflow string         `json:"workflow"`
	Params   map[string]any `json:"params"`
	Key      *string        `json:"iclaw_key"`
}

type workflowResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error"`
	Result map[string]any `json:"result"`
}

// Run posts one workflow request and returns its result mapping.
func (c *Client) Run(ctx context.Context, workflow string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}

	reqBody := workflowRequest{Workflow: workflow, Params: params}
	if c.opts.APIKey != "" {
		reqBody.Key = &c.opts.APIKey
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", workflow, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+workflowPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", workflow, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.opts.Logger.Warn("nabl.workflow.transport_error", "workflow", workflow, "error", err.Error())
		return nil, fmt.Errorf("%s workflow request: %w", workflow, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", workflow, err)
	}

	c.opts.Logger.Debug(
		"nabl.workflow.response",
		"workflow", workflow,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	var decoded workflowResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if decodeErr == nil && decoded.Status == "error" {
		msg := decoded.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &APIError{Workflow: workflow, Message: msg}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Workflow: workflow, StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s response: %w", workflow, decodeErr)
	}

	if decoded.Result == nil {
		return map[string]any{}, nil
	}

	return decoded.Result, nil
}

// Audit runs the audit workflow for url.
func (c *Client) Audit(ctx context.Context, url string) (*AuditResult, error) {
	return Audit(ctx, c, url)
}

// Discovery runs the discovery workflow.
func (c *Client) Discovery(ctx context.Context, q DiscoveryQuery) (*DiscoveryResult, error) {
	return Discovery(ctx, c, q)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
