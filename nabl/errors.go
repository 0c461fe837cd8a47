package nabl

import "fmt"

// APIError is an application level failure reported by the workflow API
// ({"status": "error", "error": msg}).
type APIError struct {
	Workflow string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s workflow failed: %s", e.Workflow, e.Message)
}

// StatusError is a non-2xx HTTP response without an error envelope.
type StatusError struct {
	Workflow   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s workflow: unexpected status %d", e.Workflow, e.StatusCode)
	}
	return fmt.Sprintf("%s workflow: unexpected status %d: %s", e.Workflow, e.StatusCode, e.Body)
}
