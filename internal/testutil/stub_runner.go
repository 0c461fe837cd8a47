package testutil

import (
	"context"
	"fmt"
	"sync"
)

// WorkflowCall records one StubRunner invocation.
type WorkflowCall struct {
	Workflow string
	Params   map[string]any
}

// StubRunner answers remote workflow calls from canned results keyed by
// workflow name. Unknown workflows fail.
type StubRunner struct {
	Results map[string]map[string]any
	Errors  map[string]error

	mu    sync.Mutex
	calls []WorkflowCall
}

// NewStubRunner creates a runner with no canned answers.
func NewStubRunner() *StubRunner {
	return &StubRunner{
		Results: map[string]map[string]any{},
		Errors:  map[string]error{},
	}
}

// On registers the result returned for workflow (chainable).
func (s *StubRunner) On(workflow string, result map[string]any) *StubRunner {
	s.Results[workflow] = result
	return s
}

// OnError registers the error returned for workflow (chainable).
func (s *StubRunner) OnError(workflow string, err error) *StubRunner {
	s.Errors[workflow] = err
	return s
}

// Run implements the workflow runner contract.
func (s *StubRunner) Run(ctx context.Context, workflow string, params map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, WorkflowCall{Workflow: workflow, Params: params})
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.Errors[workflow]; ok {
		return nil, err
	}
	if res, ok := s.Results[workflow]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("stub runner: no result for workflow %q", workflow)
}

// Calls returns the recorded invocations.
func (s *StubRunner) Calls() []WorkflowCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WorkflowCall(nil), s.calls...)
}
