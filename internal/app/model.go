package app

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/nablmesh/config"
	"github.com/hupe1980/nablmesh/model"
	"github.com/hupe1980/nablmesh/model/anthropic"
	"github.com/hupe1980/nablmesh/model/gemini"
	"github.com/hupe1980/nablmesh/model/openai"
)

// NewModel builds the model client selected by cfg.Provider. An empty API key
// leaves key lookup to the provider SDK's own environment handling.
func NewModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.AnthropicAPIKey
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.OpenAIAPIKey
		}), nil
	case config.ProviderGemini:
		m, err := gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = float32(cfg.Temperature)
			o.APIKey = cfg.GeminiAPIKey
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
