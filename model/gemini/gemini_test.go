package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/model"
)

type stubGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (s *stubGenerator) GenerateContent(_ context.Context, m string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model, s.contents, s.config = m, contents, cfg
	return s.resp, s.err
}

func TestGenerate_ToolRoundTrip(t *testing.T) {
	gen := &stubGenerator{resp: &genai.GenerateContentResponse{
		ResponseID: "r1",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{Text: "Auditing."},
				{FunctionCall: &genai.FunctionCall{Name: "nabl_audit", Args: map[string]any{"url": "example.com"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}}
	m := NewModelFromGenerator(gen)

	call := core.ToolCall{ID: "c0", Name: "nabl_discovery", Arguments: map[string]any{"niche": "dentist"}}
	resp, err := m.Generate(context.Background(), model.Request{
		Messages: []core.Message{
			core.NewSystemMessage("sys"),
			core.NewUserMessage("hi"),
			core.NewAssistantMessage("", call),
			core.NewToolResultMessage(core.ToolResult{ToolCallID: "c0", Name: "nabl_discovery", Payload: []any{"a"}}),
		},
		Tools: []model.ToolDefinition{model.NewToolDefinition("nabl_audit", "Audit", map[string]any{"type": "object"})},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, gen.model)
	assert.Equal(t, "sys", gen.config.SystemInstruction.Parts[0].Text)
	require.Len(t, gen.config.Tools, 1)
	assert.Equal(t, "nabl_audit", gen.config.Tools[0].FunctionDeclarations[0].Name)

	require.Len(t, gen.contents, 3)
	assert.Equal(t, "user", gen.contents[0].Role)
	assert.Equal(t, "model", gen.contents[1].Role)
	assert.Equal(t, "c0", gen.contents[1].Parts[0].FunctionCall.ID)
	fr := gen.contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "c0", fr.ID)
	assert.Equal(t, map[string]any{"output": []any{"a"}}, fr.Response)

	assert.Equal(t, "r1", resp.ID)
	assert.Equal(t, "Auditing.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.NotEmpty(t, resp.Message.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"url": "example.com"}, resp.Message.ToolCalls[0].Arguments)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestGenerate_Errors(t *testing.T) {
	m := NewModelFromGenerator(&stubGenerator{err: errors.New("quota")})
	_, err := m.Generate(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	assert.ErrorContains(t, err, "quota")

	m = NewModelFromGenerator(&stubGenerator{resp: &genai.GenerateContentResponse{}})
	_, err = m.Generate(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	assert.ErrorIs(t, err, model.ErrNoChoices)
}

func TestResponsePayload(t *testing.T) {
	assert.Equal(t, map[string]any{"error": "boom"}, responsePayload(core.NewErrorResult(core.ToolCall{}, "boom")))
	assert.Equal(t, map[string]any{"output": "text"}, responsePayload(core.ToolResult{Payload: "text"}))

	type audit struct {
		Score int `json:"score"`
	}
	assert.Equal(t, map[string]any{"score": float64(82)}, responsePayload(core.ToolResult{Payload: audit{Score: 82}}))
}
