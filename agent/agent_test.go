package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/internal/testutil"
	"github.com/hupe1980/nablmesh/model"
	"github.com/hupe1980/nablmesh/nabl"
	"github.com/hupe1980/nablmesh/tool"
)

func newInvoker(t *testing.T, tools ...tool.Tool) *tool.Invoker {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(tools...)
	inv, err := tool.NewInvoker(reg, func(o *tool.InvokerOptions) { o.Timeout = time.Second })
	require.NoError(t, err)
	t.Cleanup(inv.Close)
	return inv
}

func delayedTool(name string, delay time.Duration) tool.Tool {
	return tool.NewFunctionTool(name, name, map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		select {
		case <-time.After(delay):
			return name, nil
		case <-tc.Done():
			return nil, tc.Err()
		}
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AWAITING_MODEL", StateAwaitingModel.String())
	assert.Equal(t, "AWAITING_TOOLS", StateAwaitingTools.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestSubmit_NoToolCalls(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.ReplyText("Hello there."))
	a := New(llm, newInvoker(t), func(o *Options) { o.Instruction = NewInstructionFromText("be brief") })

	res, err := a.Submit(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", res.FinalText)
	assert.Empty(t, res.ToolResults)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, llm.Calls())

	req := llm.Requests()[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, core.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, core.NewUserMessage("hi"), req.Messages[1])
}

func TestSubmit_AuditScenario(t *testing.T) {
	runner := testutil.NewStubRunner().On(nabl.WorkflowAudit, map[string]any{"score": 82, "critical_issues": 1})
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().Call("nabl_audit", map[string]any{"url": "example.com"}).Build()),
		testutil.ReplyText("The audit score is 82 with 1 critical issue."),
	)
	a := New(llm, newInvoker(t, nabl.AuditTool(runner), nabl.DiscoveryTool(runner)))

	res, err := a.Submit(context.Background(), "audit example.com")
	require.NoError(t, err)

	assert.Equal(t, "The audit score is 82 with 1 critical issue.", res.FinalText)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, "call_1", res.ToolResults[0].ToolCallID)
	assert.Equal(t, map[string]any{"score": 82, "critical_issues": 1}, res.ToolResults[0].Payload)
	assert.Equal(t, 2, res.Iterations)

	// The second model turn sees the tool result appended after the assistant turn.
	second := llm.Requests()[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, core.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, core.RoleTool, second.Messages[2].Role)

	// Tools are offered in registration order.
	require.Len(t, second.Tools, 2)
	assert.Equal(t, "nabl_audit", second.Tools[0].Function.Name)
	assert.Equal(t, "nabl_discovery", second.Tools[1].Function.Name)
}

func TestSubmit_DiscoveryZeroResults(t *testing.T) {
	runner := testutil.NewStubRunner().On(nabl.WorkflowDiscovery, map[string]any{"total_found": 0, "businesses": []any{}})

	// The second turn answers from what the tool returned.
	answer := func(_ context.Context, req model.Request) (*model.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		payload := last.ToolResult.Payload.(map[string]any)
		if payload["total_found"] == 0 {
			return &model.Response{Message: core.NewAssistantMessage("I found 0 matching dentists in Nowhere, TX.")}, nil
		}
		return &model.Response{Message: core.NewAssistantMessage("Found some.")}, nil
	}
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().Call("nabl_discovery", map[string]any{"niche": "dentists", "location": "Nowhere, TX"}).Build()),
		answer,
	)
	a := New(llm, newInvoker(t, nabl.DiscoveryTool(runner)))

	res, err := a.Submit(context.Background(), "find dentists in Nowhere, TX")
	require.NoError(t, err)

	assert.Contains(t, res.FinalText, "0")
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, map[string]any{"total_found": 0, "businesses": []any{}}, res.ToolResults[0].Payload)
	assert.Equal(t, 50, runner.Calls()[0].Params["limit"])
}

func TestSubmit_ResultsInEmissionOrder(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().
			Call("slow", nil).
			Call("fast", nil).
			Call("medium", nil).
			Build()),
		testutil.ReplyText("done"),
	)
	a := New(llm, newInvoker(t,
		delayedTool("slow", 60*time.Millisecond),
		delayedTool("fast", time.Millisecond),
		delayedTool("medium", 20*time.Millisecond),
	))

	res, err := a.Submit(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, res.ToolResults, 3)
	for i, want := range []string{"slow", "fast", "medium"} {
		assert.Equal(t, want, res.ToolResults[i].Payload)
		assert.Equal(t, res.ToolResults[i].ToolCallID, llm.Requests()[1].Messages[2+i].ToolResult.ToolCallID)
	}
}

func TestSubmit_UnknownToolIsRecovered(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().Call("nonexistent", nil).Build()),
		testutil.ReplyText("Sorry, I cannot do that."),
	)
	a := New(llm, newInvoker(t))

	res, err := a.Submit(context.Background(), "do something")
	require.NoError(t, err)

	assert.Equal(t, "Sorry, I cannot do that.", res.FinalText)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, map[string]any{"error": "Unknown tool: nonexistent"}, res.ToolResults[0].Payload)
}

func TestSubmit_ToolFailureBecomesData(t *testing.T) {
	runner := testutil.NewStubRunner().OnError(nabl.WorkflowAudit, errors.New("upstream timeout"))
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().Call("nabl_audit", map[string]any{"url": "example.com"}).Build()),
		testutil.ReplyText("The audit service is unavailable."),
	)
	a := New(llm, newInvoker(t, nabl.AuditTool(runner)))

	res, err := a.Submit(context.Background(), "audit example.com")
	require.NoError(t, err)
	assert.Equal(t, "upstream timeout", res.ToolResults[0].ErrorMessage())
}

func TestSubmit_LoopExceeded(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.Reply(testutil.NewTurn().Call("echo", nil).Build()))
	llm.Repeat = true
	echo := tool.NewFunctionTool("echo", "echo", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) {
		return "ok", nil
	})
	a := New(llm, newInvoker(t, echo), func(o *Options) { o.MaxIterations = 3 })

	res, err := a.Submit(context.Background(), "loop forever")
	assert.Nil(t, res)

	var loopErr *LoopExceededError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 3, loopErr.MaxIterations)
	assert.Equal(t, 3, llm.Calls())
}

func TestSubmit_ModelError(t *testing.T) {
	boom := errors.New("connection reset")
	llm := testutil.NewScriptedModel(testutil.Fail(boom))
	a := New(llm, newInvoker(t))

	res, err := a.Submit(context.Background(), "hi")
	assert.Nil(t, res)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, 1, modelErr.Iteration)
	assert.ErrorIs(t, err, boom)
}

func TestSubmit_ModelErrorAfterTools(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().Call("nonexistent", nil).Build()),
		testutil.Fail(errors.New("503")),
	)
	a := New(llm, newInvoker(t))

	res, err := a.Submit(context.Background(), "hi")
	assert.Nil(t, res)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, 2, modelErr.Iteration)
}

func TestSubmit_ModelTimeout(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.Block())
	a := New(llm, newInvoker(t), func(o *Options) { o.ModelTimeout = 20 * time.Millisecond })

	_, err := a.Submit(context.Background(), "hi")

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmit_CancelledDuringTools(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().Call("slow", nil).Build()),
		testutil.ReplyText("never"),
	)
	a := New(llm, newInvoker(t, delayedTool("slow", time.Minute)))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	res, err := a.Submit(ctx, "hi")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, llm.Calls())
}

func TestSubmit_CancelledBeforeStart(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.ReplyText("x"))
	a := New(llm, newInvoker(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Submit(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, llm.Calls())
}

func TestSubmit_FallbackText(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.ReplyText("  "))
	a := New(llm, newInvoker(t))

	res, err := a.Submit(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackText, res.FinalText)
}

func TestSubmit_AccumulatesResultsAcrossIterations(t *testing.T) {
	runner := testutil.NewStubRunner().
		On(nabl.WorkflowDiscovery, map[string]any{"total_found": 1}).
		On(nabl.WorkflowAudit, map[string]any{"score": 90})
	llm := testutil.NewScriptedModel(
		testutil.Reply(testutil.NewTurn().CallWithID("d1", "nabl_discovery", map[string]any{"niche": "cafes", "location": "Oslo"}).Build()),
		testutil.Reply(testutil.NewTurn().CallWithID("a1", "nabl_audit", map[string]any{"url": "cafe.no"}).Build()),
		testutil.ReplyText("Found one cafe; its site scores 90."),
	)
	a := New(llm, newInvoker(t, nabl.AuditTool(runner), nabl.DiscoveryTool(runner)))

	res, err := a.Submit(context.Background(), "find a cafe in Oslo and audit it")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "d1", res.ToolResults[0].ToolCallID)
	assert.Equal(t, "a1", res.ToolResults[1].ToolCallID)
	assert.Equal(t, []core.ToolResult{res.ToolResults[1]}, res.Conversation.LastToolResults())
}

func TestSubmit_PromptTemplate(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.ReplyText("ok"))
	a := New(llm, newInvoker(t), func(o *Options) {
		o.PromptTemplate = "User request: {{.message}}\n\nBe concise."
	})

	_, err := a.Submit(context.Background(), "audit example.com")
	require.NoError(t, err)

	user := llm.Requests()[0].Messages[0]
	assert.Equal(t, core.RoleUser, user.Role)
	assert.True(t, strings.HasPrefix(user.Content, "User request: audit example.com"))
}

func TestSubmit_InstructionError(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.ReplyText("ok"))
	a := New(llm, newInvoker(t), func(o *Options) {
		o.Instruction = NewInstructionFromProvider(mockProvider{err: errors.New("no prompt")})
	})

	_, err := a.Submit(context.Background(), "hi")
	assert.ErrorContains(t, err, "no prompt")
	assert.Equal(t, 0, llm.Calls())
}

func TestSubmit_ConcurrentRequestsAreIsolated(t *testing.T) {
	llm := model.Func(func(_ context.Context, req model.Request) (*model.Response, error) {
		last := req.Messages[len(req.Messages)-1]
		return &model.Response{Message: core.NewAssistantMessage("echo: " + last.Content)}, nil
	})
	a := New(llm, newInvoker(t))

	errs := make(chan error, 20)
	for i := range 20 {
		go func() {
			msg := strings.Repeat("x", i+1)
			res, err := a.Submit(context.Background(), msg)
			if err == nil && res.FinalText != "echo: "+msg {
				err = errors.New("crossed conversations")
			}
			errs <- err
		}()
	}
	for range 20 {
		assert.NoError(t, <-errs)
	}
}
