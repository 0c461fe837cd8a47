package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/nablmesh/core"
)

type mockTool struct {
	name     string
	delay    time.Duration
	result   any
	err      error
	panicMsg any
	block    chan struct{}
}

func (mt *mockTool) Name() string               { return mt.name }
func (mt *mockTool) Description() string        { return "mock tool" }
func (mt *mockTool) Parameters() map[string]any { return map[string]any{} }
func (mt *mockTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	if mt.block != nil {
		<-mt.block // ignores its context on purpose
	}
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Done():
			return nil, tc.Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	return mt.result, mt.err
}

func newTestInvoker(t *testing.T, timeout time.Duration, tools ...Tool) *Invoker {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(tools...)
	inv, err := NewInvoker(r, func(o *InvokerOptions) {
		o.Timeout = timeout
		o.MaxParallel = 8
	})
	require.NoError(t, err)
	t.Cleanup(inv.Close)
	return inv
}

func TestInvoker_UnknownTool(t *testing.T) {
	inv := newTestInvoker(t, time.Second)

	var res core.ToolResult
	assert.NotPanics(t, func() {
		res = inv.Invoke(context.Background(), core.ToolCall{ID: "1", Name: "nonexistent", Arguments: map[string]any{}})
	})
	assert.Equal(t, "1", res.ToolCallID)
	assert.True(t, res.IsError)
	assert.Equal(t, map[string]any{"error": "Unknown tool: nonexistent"}, res.Payload)
}

func TestInvoker_Idempotent(t *testing.T) {
	inv := newTestInvoker(t, time.Second, &mockTool{name: "nabl_audit", result: map[string]any{"score": 82, "critical_issues": 1}})
	call := core.ToolCall{ID: "c1", Name: "nabl_audit", Arguments: map[string]any{"url": "example.com"}}

	first := inv.Invoke(context.Background(), call)
	second := inv.Invoke(context.Background(), call)
	assert.Equal(t, first, second)
	assert.False(t, first.IsError)
	assert.Equal(t, map[string]any{"score": 82, "critical_issues": 1}, first.Payload)
}

func TestInvoker_InvokeAllPreservesOrder(t *testing.T) {
	inv := newTestInvoker(t, time.Second,
		&mockTool{name: "slow", delay: 60 * time.Millisecond, result: "s"},
		&mockTool{name: "fast", delay: 5 * time.Millisecond, result: "f"},
		&mockTool{name: "mid", delay: 30 * time.Millisecond, result: "m"},
	)
	calls := []core.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
		{ID: "3", Name: "mid"},
	}

	start := time.Now()
	results := inv.InvokeAll(context.Background(), calls)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
	}
	assert.Equal(t, []any{"s", "f", "m"}, []any{results[0].Payload, results[1].Payload, results[2].Payload})
	assert.Less(t, elapsed, 90*time.Millisecond, "calls should run concurrently")
}

func TestInvoker_ErrorIsolation(t *testing.T) {
	inv := newTestInvoker(t, time.Second,
		&mockTool{name: "ok", result: "fine"},
		&mockTool{name: "bad", err: errors.New("upstream returned 503")},
	)

	results := inv.InvokeAll(context.Background(), []core.ToolCall{{ID: "1", Name: "ok"}, {ID: "2", Name: "bad"}, {ID: "3", Name: "missing"}})
	require.Len(t, results, 3)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "upstream returned 503", results[1].ErrorMessage())
	assert.Equal(t, "Unknown tool: missing", results[2].ErrorMessage())
}

func TestInvoker_PanicRecovery(t *testing.T) {
	inv := newTestInvoker(t, time.Second, &mockTool{name: "panic", panicMsg: "boom"})

	res := inv.Invoke(context.Background(), core.ToolCall{ID: "1", Name: "panic"})
	assert.True(t, res.IsError)
	assert.Equal(t, "panic: boom", res.ErrorMessage())
}

func TestInvoker_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	inv := newTestInvoker(t, 20*time.Millisecond, &mockTool{name: "stuck", block: release})

	start := time.Now()
	res := inv.Invoke(context.Background(), core.ToolCall{ID: "1", Name: "stuck"})
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.IsError)
	assert.True(t, strings.Contains(res.ErrorMessage(), "timed out"), res.ErrorMessage())
}

func TestInvoker_Cancellation(t *testing.T) {
	inv := newTestInvoker(t, time.Minute,
		&mockTool{name: "long", delay: time.Minute},
		&mockTool{name: "long2", delay: time.Minute},
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	results := inv.InvokeAll(ctx, []core.ToolCall{{ID: "1", Name: "long"}, {ID: "2", Name: "long2"}})
	assert.Less(t, time.Since(start), time.Second)
	for _, r := range results {
		assert.True(t, r.IsError)
		assert.Contains(t, r.ErrorMessage(), "cancelled")
	}
}

func TestInvoker_NilArgumentsBecomeEmpty(t *testing.T) {
	var got map[string]any
	r := NewRegistry()
	require.NoError(t, r.RegisterFunc(Spec{Name: "args", Parameters: map[string]any{"type": "object"}}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		got = args
		return nil, nil
	}))
	inv, err := NewInvoker(r)
	require.NoError(t, err)
	defer inv.Close()

	inv.Invoke(context.Background(), core.ToolCall{ID: "1", Name: "args"})
	assert.NotNil(t, got)
	assert.Empty(t, inv.InvokeAll(context.Background(), nil))
}

func TestInvoker_CancelledWhilePoolSaturated(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	holder := NewFunctionTool("holder", "holds a worker", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-tc.Done():
			return nil, tc.Err()
		}
		return "held", nil
	})
	quick := &mockTool{name: "quick", result: "ok"}

	r := NewRegistry()
	r.MustRegister(holder, quick)
	inv, err := NewInvoker(r, func(o *InvokerOptions) {
		o.Timeout = 5 * time.Second
		o.MaxParallel = 2
	})
	require.NoError(t, err)
	t.Cleanup(inv.Close)

	doneA := make(chan []core.ToolResult, 1)
	go func() {
		doneA <- inv.InvokeAll(context.Background(), []core.ToolCall{
			{ID: "a1", Name: "holder"},
			{ID: "a2", Name: "holder"},
		})
	}()
	<-started
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := inv.InvokeAll(ctx, []core.ToolCall{
		{ID: "b1", Name: "quick"},
		{ID: "b2", Name: "quick"},
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, []string{"b1", "b2"}[i], res.ToolCallID)
		assert.True(t, res.IsError)
		assert.Contains(t, res.ErrorMessage(), "cancelled")
	}

	close(release)
	for _, res := range <-doneA {
		assert.False(t, res.IsError)
		assert.Equal(t, "held", res.Payload)
	}
}
