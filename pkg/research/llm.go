package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// errInvalidOutput marks model output that does not match the requested
// structure, as opposed to a failed model call.
var errInvalidOutput = errors.New("invalid model output")

// LLMOptions are shared by the LLM-backed adapters.
type LLMOptions struct {
	// Language the model should answer in.
	Language string
	// MaxAttempts bounds generations per call when the output does not
	// validate. Defaults to 1.
	MaxAttempts int
	Logger      *slog.Logger
}

type llmClient struct {
	llm  llms.Model
	opts LLMOptions
	// now is stubbed in tests.
	now func() time.Time
}

func newLLMClient(llm llms.Model, opts LLMOptions) llmClient {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Language == "" {
		opts.Language = "English"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return llmClient{llm: llm, opts: opts, now: time.Now}
}

func (c llmClient) systemPrompt() string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. When responding:
- The subject may postdate your training data; trust news the user presents.
- The user is an experienced analyst: be detailed, precise and well organised.
- Anticipate needs and suggest solutions the user has not thought of.
- Prefer sound arguments over authorities; the source itself is irrelevant.
- Consider new technologies and contrarian ideas, and flag speculation.
- Always answer in %s.`, c.now().Format("2006-01-02"), c.opts.Language)
}

// generateWithRetry generates content and validates it using the provided
// function, trying up to MaxAttempts times.
func (c llmClient) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	var lastErr error

	for i := 0; i < c.opts.MaxAttempts; i++ {
		if i > 0 {
			c.opts.Logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second * time.Duration(i)): // Linear backoff
			}
		}

		resp, err := c.llm.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			if ctx.Err() != nil {
				return "", lastErr
			}
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := extractJSON(resp.Choices[0].Content)
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

// generateObject asks for a JSON object described by schema and decodes it
// into a T. validate may reject a decoded value to trigger another attempt.
func generateObject[T any](ctx context.Context, c llmClient, prompt, schema string, validate func(*T) error) (T, error) {
	var out T
	_, err := c.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.systemPrompt()+"\n\n# Response Format:\n"+responseFormat(schema)),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, func(content string) error {
		var zero T
		out = zero
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			return fmt.Errorf("%w: json parse error: %w", errInvalidOutput, err)
		}
		if validate != nil {
			return validate(&out)
		}
		return nil
	})
	return out, err
}

func responseFormat(schema string) string {
	return `Return the JSON object directly without any formatting or additional text. The JSON object must match this schema and include all required properties:` + schema
}

// extractJSON strips code fences and text around the outermost JSON object.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
