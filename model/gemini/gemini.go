// Package gemini provides a model wrapper for the Google Gemini API via the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/model"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

const (
	roleUser  = "user"
	roleModel = "model"
)

// Generator is the subset of genai.Models used by the adapter.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options configures the Gemini model adapter.
type Options struct {
	Model       string
	Temperature float32
	APIKey      string
	BaseURL     string
}

// Model wraps genai GenerateContent behind the generic model.Model interface.
type Model struct {
	models Generator
	opts   Options
}

// NewModel creates a Gemini model backed by a new genai client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions(optFns...)

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Model{models: client.Models, opts: opts}, nil
}

// NewModelFromGenerator creates a Gemini model from an existing generator
// (typically genai.Client.Models).
func NewModelFromGenerator(models Generator, optFns ...func(o *Options)) *Model {
	return &Model{models: models, opts: defaultOptions(optFns...)}
}

func defaultOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:       DefaultModel,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate performs one GenerateContent call with the full transcript.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	contents, system := buildContents(req.Messages)

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.opts.Temperature),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = buildTools(req.Tools)
	}

	resp, err := m.models.GenerateContent(ctx, m.opts.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	return convertResponse(resp)
}

// buildContents converts the transcript into genai contents. Consecutive tool
// results are grouped into one user content of function responses.
func buildContents(msgs []core.Message) ([]*genai.Content, string) {
	var (
		contents  []*genai.Content
		system    []string
		responses []*genai.Part
	)

	flush := func() {
		if len(responses) > 0 {
			contents = append(contents, &genai.Content{Role: roleUser, Parts: responses})
			responses = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role == core.RoleTool {
			if r := msg.ToolResult; r != nil {
				responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       r.ToolCallID,
					Name:     r.Name,
					Response: responsePayload(*r),
				}})
			}
			continue
		}

		flush()

		switch msg.Role {
		case core.RoleSystem:
			system = append(system, msg.Content)
		case core.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Arguments,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}
		default:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}

	flush()

	return contents, strings.Join(system, "\n\n")
}

// responsePayload shapes a tool result as the JSON object Gemini expects:
// objects pass through, other values are wrapped under "output".
func responsePayload(r core.ToolResult) map[string]any {
	if m, ok := r.Payload.(map[string]any); ok {
		return m
	}

	if b, err := json.Marshal(r.Payload); err == nil {
		var m map[string]any
		if json.Unmarshal(b, &m) == nil && m != nil {
			return m
		}
	}

	return map[string]any{"output": r.Payload}
}

func buildTools(tools []model.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Function.Name,
			Description:          t.Function.Description,
			ParametersJsonSchema: t.Function.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertResponse(resp *genai.GenerateContentResponse) (*model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, model.ErrNoChoices
	}

	var (
		text         strings.Builder
		calls        []core.ToolCall
		finishReason string
	)

	candidate := resp.Candidates[0]
	if candidate.FinishReason != "" {
		finishReason = string(candidate.FinishReason)
	}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = model.NewCallID()
				}
				args := fc.Args
				if args == nil {
					args = map[string]any{}
				}
				calls = append(calls, core.ToolCall{ID: id, Name: fc.Name, Arguments: args})
			}
		}
	}

	out := &model.Response{
		ID:           resp.ResponseID,
		Message:      core.NewAssistantMessage(text.String(), calls...),
		FinishReason: finishReason,
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return out, nil
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
