package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
)

// NewModel selects the model client from the configured provider.
func NewModel(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	model := ModelType(cfg.LLMModel)
	apiKey := cfg.APIKey()

	switch cfg.LLMProvider {
	case "", "google":
		return GoogleAi(ctx, model, apiKey)
	case "openai":
		return OpenAI(model, apiKey, cfg.OpenAIBaseURL)
	case "fireworks":
		if model == "" {
			model = DeepSeekR1
		}
		baseURL := cfg.OpenAIBaseURL
		if baseURL == "" {
			baseURL = FireworksAI
		}
		return OpenAI(model, apiKey, baseURL)
	case "anthropic":
		return AnthropicAI(model, apiKey)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
}
