package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

const (
	O3Mini     ModelType = "o3-mini"
	GPT4o      ModelType = "gpt-4o"
	DeepSeekR1 ModelType = "accounts/fireworks/models/deepseek-r1"
)

// FireworksAI is the OpenAI-compatible Fireworks inference endpoint.
const FireworksAI = "https://api.fireworks.ai/inference/v1"

// OpenAI creates a client for OpenAI or any OpenAI-compatible endpoint
// (Fireworks, local inference servers) when baseURL is set.
func OpenAI(model ModelType, apiKey, baseURL string) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = O3Mini
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(string(model)),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return llm, nil
}
