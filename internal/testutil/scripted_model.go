package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/model"
)

// ErrScriptExhausted is returned once a ScriptedModel has no steps left.
var ErrScriptExhausted = errors.New("scripted model: no more steps")

// Step produces one model turn.
type Step func(ctx context.Context, req model.Request) (*model.Response, error)

// Reply returns a step answering with msg.
func Reply(msg core.Message) Step {
	return func(context.Context, model.Request) (*model.Response, error) {
		return &model.Response{Message: msg, FinishReason: "stop"}, nil
	}
}

// ReplyText returns a step answering with plain text.
func ReplyText(text string) Step { return Reply(core.NewAssistantMessage(text)) }

// Fail returns a step failing with err.
func Fail(err error) Step {
	return func(context.Context, model.Request) (*model.Response, error) { return nil, err }
}

// Block returns a step that waits for ctx to be done.
func Block() Step {
	return func(ctx context.Context, _ model.Request) (*model.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// ScriptedModel is a model.Model replaying a fixed list of steps and
// recording every request it receives. With Repeat set the last step is
// replayed forever.
type ScriptedModel struct {
	Repeat bool

	mu       sync.Mutex
	steps    []Step
	requests []model.Request
}

// NewScriptedModel creates a model replaying steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)

	var step Step
	switch {
	case idx < len(m.steps):
		step = m.steps[idx]
	case m.Repeat && len(m.steps) > 0:
		step = m.steps[len(m.steps)-1]
	}
	m.mu.Unlock()

	if step == nil {
		return nil, ErrScriptExhausted
	}

	return step(ctx, req)
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "test", SupportsTools: true}
}

// Calls returns how many times Generate was called.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the recorded requests.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Request(nil), m.requests...)
}
