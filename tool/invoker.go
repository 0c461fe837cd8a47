package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/logging"
	"github.com/hupe1980/nablmesh/telemetry"
)

// InvokerOptions configures an Invoker.
type InvokerOptions struct {
	// Timeout bounds every single tool call. A call that exceeds it yields an
	// error result; the loop keeps going. Zero disables the bound.
	Timeout time.Duration
	// MaxParallel is the size of the shared worker pool used by InvokeAll.
	MaxParallel int
	// LogStartEvents logs a start line per call.
	LogStartEvents bool

	Logger      logging.Logger
	Tracer      trace.Tracer
	Instruments *telemetry.Instruments
}

// Invoker dispatches tool calls against a Registry and normalizes every
// outcome into a core.ToolResult. It never returns an error and never panics:
// unknown tools, invalid arguments, handler failures, panics and timeouts all
// become {"error": msg} payloads.
//
// An Invoker is safe for concurrent use; the worker pool is shared by all
// requests and bounds the number of tool calls in flight process wide.
type Invoker struct {
	registry *Registry
	opts     InvokerOptions
	pool     *ants.Pool
	// slots admits calls to the pool; waiting for a slot honours ctx, a
	// blocking pool Submit does not.
	slots *semaphore.Weighted
}

// NewInvoker creates an Invoker backed by registry. Call Close to release the pool.
func NewInvoker(registry *Registry, optFns ...func(o *InvokerOptions)) (*Invoker, error) {
	opts := InvokerOptions{
		Timeout:     120 * time.Second,
		MaxParallel: 16,
		Logger:      logging.NoOpLogger{},
		Tracer:      telemetry.Tracer(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}

	pool, err := ants.NewPool(opts.MaxParallel)
	if err != nil {
		return nil, fmt.Errorf("create tool pool: %w", err)
	}

	return &Invoker{
		registry: registry,
		opts:     opts,
		pool:     pool,
		slots:    semaphore.NewWeighted(int64(opts.MaxParallel)),
	}, nil
}

// Close releases the worker pool.
func (i *Invoker) Close() { i.pool.Release() }

// Registry returns the registry the invoker dispatches against.
func (i *Invoker) Registry() *Registry { return i.registry }

// InvokeAll executes calls concurrently and returns their results aligned
// with calls by index, i.e. in emission order regardless of completion time.
func (i *Invoker) InvokeAll(ctx context.Context, calls []core.ToolCall) []core.ToolResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.ToolResult, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = i.Invoke(ctx, calls[0])
		return results
	}

	batchStart := time.Now()

	var wg sync.WaitGroup
	for idx, call := range calls {
		// A cancelled request stops waiting for pool capacity; calls not yet
		// admitted are answered as cancelled.
		if err := ctx.Err(); err != nil {
			results[idx] = core.NewErrorResult(call, fmt.Sprintf("tool %s cancelled: %v", call.Name, err))
			continue
		}
		if err := i.slots.Acquire(ctx, 1); err != nil {
			results[idx] = core.NewErrorResult(call, fmt.Sprintf("tool %s cancelled: %v", call.Name, err))
			continue
		}

		wg.Add(1)
		err := i.pool.Submit(func() {
			defer wg.Done()
			defer i.slots.Release(1)
			results[idx] = i.Invoke(ctx, call)
		})
		if err != nil {
			i.slots.Release(1)
			wg.Done()
			i.opts.Logger.Error("tool.pool.submit_failed", "tool", call.Name, "error", err.Error())
			results[idx] = core.NewErrorResult(call, fmt.Sprintf("tool %s could not be scheduled: %v", call.Name, err))
		}
	}

	wg.Wait()

	i.opts.Logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", min(n, i.opts.MaxParallel),
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// Invoke executes a single call.
func (i *Invoker) Invoke(ctx context.Context, call core.ToolCall) core.ToolResult {
	ctx, span := i.opts.Tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	logger := logging.With(i.opts.Logger, "tool", call.Name, "fc_id", call.ID)
	if i.opts.LogStartEvents {
		logger.Info("tool.invoke.start")
	}

	start := time.Now()
	result := i.invoke(ctx, call, logger)
	dur := time.Since(start)

	if result.IsError {
		span.SetStatus(codes.Error, result.ErrorMessage())
	}

	i.opts.Instruments.RecordToolCall(ctx, call.Name, dur, result.IsError)
	logger.Info("tool.invoke.executed", "duration_ms", dur.Milliseconds(), "error", result.IsError)

	return result
}

func (i *Invoker) invoke(ctx context.Context, call core.ToolCall, logger logging.Logger) core.ToolResult {
	impl, err := i.registry.Resolve(call.Name)
	if err != nil {
		logger.Warn("tool.invoke.unknown")
		return core.NewErrorResult(call, err.Error())
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	callCtx := ctx
	if i.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.opts.Timeout)
		defer cancel()
	}

	payload, err := i.call(callCtx, impl, call, args, logger)
	if err != nil {
		return core.NewErrorResult(call, errorMessage(err))
	}

	return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Payload: payload}
}

type callOutcome struct {
	payload any
	err     error
}

// call runs the handler on its own goroutine so that a handler ignoring its
// context still cannot hold the loop past the call timeout.
func (i *Invoker) call(ctx context.Context, impl Tool, call core.ToolCall, args map[string]any, logger logging.Logger) (any, error) {
	done := make(chan callOutcome, 1)

	go func() {
		var out callOutcome
		defer func() {
			if r := recover(); r != nil {
				logger.Error("tool.invoke.panic", "recover", r, "stack", string(debug.Stack()))
				out = callOutcome{err: &ToolError{Tool: call.Name, Message: fmt.Sprintf("panic: %v", r), Code: CodePanic}}
			}
			done <- out
		}()
		payload, err := impl.Call(core.NewToolContext(ctx, call, logger), args)
		out = callOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			return nil, contextError(ctx, call.Name, i.opts.Timeout)
		}
		return out.payload, out.err
	case <-ctx.Done():
		return nil, contextError(ctx, call.Name, i.opts.Timeout)
	}
}

func contextError(ctx context.Context, name string, timeout time.Duration) *ToolError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewToolError(name, fmt.Sprintf("tool %s timed out after %s", name, timeout), CodeTimeout)
	}
	return NewToolError(name, fmt.Sprintf("tool %s cancelled: %v", name, ctx.Err()), CodeCancelled)
}

func errorMessage(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}
