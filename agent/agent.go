package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/internal/util"
	"github.com/hupe1980/nablmesh/logging"
	"github.com/hupe1980/nablmesh/model"
	"github.com/hupe1980/nablmesh/telemetry"
	"github.com/hupe1980/nablmesh/tool"
)

// DefaultFallbackText is answered when the model finishes without any text.
const DefaultFallbackText = "I couldn't process that request."

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	// Name identifies the agent in logs and spans.
	Name string
	// Instruction is the system prompt seeding every conversation.
	Instruction Instruction
	// PromptTemplate, when set, wraps the user message before it is sent. The
	// template sees the request text as {{.message}}.
	PromptTemplate string
	// MaxIterations bounds the number of model calls per request (0 = unlimited).
	MaxIterations int
	// ModelTimeout bounds every single model call.
	ModelTimeout time.Duration
	// FallbackText replaces an empty final answer.
	FallbackText string

	Logger      logging.Logger
	Tracer      trace.Tracer
	Instruments *telemetry.Instruments
}

// Result is the outcome of one Submit call.
type Result struct {
	FinalText string
	// ToolResults holds every tool result of the request, across all
	// iterations, in emission order.
	ToolResults  []core.ToolResult
	Iterations   int
	Conversation core.Conversation
}

// Agent drives a model and a tool invoker to convergence for one user
// message at a time. An Agent holds no per-request state and is safe for
// concurrent use.
type Agent struct {
	llm     model.Model
	invoker *tool.Invoker
	tools   []model.ToolDefinition
	opts    Options
}

// New creates an Agent for the given model and tool invoker. The tool set
// exposed to the model is the invoker's registry in registration order.
func New(llm model.Model, invoker *tool.Invoker, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Name:          "agent",
		MaxIterations: 10,
		ModelTimeout:  120 * time.Second,
		FallbackText:  DefaultFallbackText,
		Logger:        logging.NoOpLogger{},
		Tracer:        telemetry.Tracer(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	specs := invoker.Registry().Specs()
	tools := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, model.NewToolDefinition(s.Name, s.Description, s.Parameters))
	}

	return &Agent{
		llm:     llm,
		invoker: invoker,
		tools:   tools,
		opts:    opts,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.opts.Name }

// Submit runs the loop for one user message:
//
//	AWAITING_MODEL --tool calls--> AWAITING_TOOLS --results--> AWAITING_MODEL
//	AWAITING_MODEL --no tool calls--> DONE
//
// Tool failures stay inside the loop as error results. A model failure
// returns *ModelError, hitting MaxIterations returns *LoopExceededError and a
// cancelled ctx returns ctx.Err(); none of them returns a partial result.
func (a *Agent) Submit(ctx context.Context, userMessage string) (*Result, error) {
	ctx, span := a.opts.Tracer.Start(ctx, "agent.submit", trace.WithAttributes(
		attribute.String("agent.name", a.opts.Name),
	))
	defer span.End()

	logger := logging.With(a.opts.Logger, "agent", a.opts.Name)

	res, err := a.run(ctx, userMessage, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.opts.Instruments.RecordLoop(ctx, iterationsOf(err), outcomeOf(err))
		logger.Error("agent.submit.error", "error", err.Error())
		return nil, unwrapAbort(err)
	}

	span.SetAttributes(
		attribute.Int("agent.iterations", res.Iterations),
		attribute.Int("agent.tool_results", len(res.ToolResults)),
	)
	a.opts.Instruments.RecordLoop(ctx, res.Iterations, "done")
	logger.Info("agent.submit.done", "iterations", res.Iterations, "tool_results", len(res.ToolResults))

	return res, nil
}

func (a *Agent) run(ctx context.Context, userMessage string, logger logging.Logger) (*Result, error) {
	system, err := a.opts.Instruction.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	prompt, err := a.prompt(userMessage)
	if err != nil {
		return nil, err
	}

	var (
		conv    = core.NewConversation(system, prompt)
		state   = StateAwaitingModel
		limiter = core.NewModelLimiter(a.opts.MaxIterations)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, &abortError{iterations: limiter.Count(), err: err}
		}

		logger.Debug("agent.state", "state", state.String(), "iteration", limiter.Count())

		switch state {
		case StateAwaitingModel:
			if err := limiter.Increment(); err != nil {
				return nil, &abortError{iterations: limiter.Count(), err: &LoopExceededError{MaxIterations: a.opts.MaxIterations}}
			}

			msg, err := a.generate(ctx, conv, limiter.Count(), logger)
			if err != nil {
				return nil, &abortError{iterations: limiter.Count(), err: err}
			}

			next, err := conv.WithAssistant(msg)
			if err != nil {
				return nil, err
			}
			conv = next

			if msg.HasToolCalls() {
				state = StateAwaitingTools
			} else {
				state = StateDone
			}
		case StateAwaitingTools:
			calls := conv.PendingToolCalls()
			results := a.invoker.InvokeAll(ctx, calls)

			// Abandon the request instead of feeding cancellation errors back to the model.
			if err := ctx.Err(); err != nil {
				return nil, &abortError{iterations: limiter.Count(), err: err}
			}

			next, err := conv.WithToolResults(results)
			if err != nil {
				return nil, err
			}
			conv = next
			state = StateAwaitingModel
		case StateDone:
			final, _ := conv.LastAssistant()
			text := final.Content
			if strings.TrimSpace(text) == "" {
				text = a.opts.FallbackText
			}

			return &Result{
				FinalText:    text,
				ToolResults:  conv.ToolResults(),
				Iterations:   limiter.Count(),
				Conversation: conv,
			}, nil
		}
	}
}

func (a *Agent) prompt(userMessage string) (string, error) {
	if a.opts.PromptTemplate == "" {
		return userMessage, nil
	}

	text, err := util.RenderTemplate(a.opts.PromptTemplate, map[string]any{"message": userMessage})
	if err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}

	return text, nil
}

// generate performs one model call under the model timeout.
func (a *Agent) generate(ctx context.Context, conv core.Conversation, iteration int, logger logging.Logger) (core.Message, error) {
	info := a.llm.Info()

	ctx, span := a.opts.Tracer.Start(ctx, "agent.model.generate", trace.WithAttributes(
		attribute.String("model.provider", info.Provider),
		attribute.String("model.name", info.Name),
		attribute.Int("agent.iteration", iteration),
	))
	defer span.End()

	callCtx := ctx
	if a.opts.ModelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.llm.Generate(callCtx, model.Request{
		Messages: conv.Messages(),
		Tools:    a.tools,
	})
	dur := time.Since(start)

	if err == nil && resp == nil {
		err = errors.New("empty model response")
	}

	a.opts.Instruments.RecordModelCall(ctx, info.Provider, info.Name, dur, err != nil)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		// Caller cancellation wins over the model error it caused.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Message{}, ctxErr
		}

		logger.Error("agent.model.error", "iteration", iteration, "duration_ms", dur.Milliseconds(), "error", err.Error())

		return core.Message{}, &ModelError{Model: info.Name, Iteration: iteration, Err: err}
	}

	msg := resp.Message
	msg.Role = core.RoleAssistant

	logger.Info(
		"agent.model.call",
		"iteration", iteration,
		"duration_ms", dur.Milliseconds(),
		"tool_calls", len(msg.ToolCalls),
		"finish_reason", resp.FinishReason,
	)

	return msg, nil
}

// abortError carries the iteration count of a failed run to the metrics
// without exposing it to callers.
type abortError struct {
	iterations int
	err        error
}

func (e *abortError) Error() string { return e.err.Error() }

func (e *abortError) Unwrap() error { return e.err }

func unwrapAbort(err error) error {
	if ae, ok := err.(*abortError); ok {
		return ae.err
	}
	return err
}

func iterationsOf(err error) int {
	var ae *abortError
	if errors.As(err, &ae) {
		return ae.iterations
	}
	return 0
}

func outcomeOf(err error) string {
	var (
		modelErr *ModelError
		loopErr  *LoopExceededError
	)

	switch {
	case errors.As(err, &modelErr):
		return "model_error"
	case errors.As(err, &loopErr):
		return "loop_exceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
