package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Feedback asks clarifying questions before research starts.
type Feedback struct {
	client llmClient
}

func NewFeedback(llm llms.Model, opts LLMOptions) *Feedback {
	return &Feedback{client: newLLMClient(llm, opts)}
}

func feedbackSchema(n int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "questions": {"type": "array", "items": {"type": "string"}, "description": "Follow up questions to clarify the research direction, max of %d"}
  },
  "required": ["questions"]
}`, n)
}

// GenerateQuestions returns up to n questions that would clarify query.
func (f *Feedback) GenerateQuestions(ctx context.Context, query string, n int) ([]string, error) {
	if n < 1 {
		return nil, nil
	}

	prompt := fmt.Sprintf(`Given the following query from the user, ask some follow up questions to clarify the research direction. Return at most %d questions, fewer if the original query is clear: <query>%s</query>`, n, query)

	type feedbackResponse struct {
		Questions []string `json:"questions"`
	}
	resp, err := generateObject[feedbackResponse](ctx, f.client, prompt, feedbackSchema(n), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate feedback questions: %w", err)
	}
	return bounded(resp.Questions, n), nil
}

// CombineQuery folds the clarifying questions and the user's answers into
// the research query.
func CombineQuery(query string, questions, answers []string) string {
	if len(questions) == 0 {
		return query
	}
	var sb strings.Builder
	sb.WriteString("Initial Query: ")
	sb.WriteString(query)
	sb.WriteString("\nFollow-up Questions and Answers:\n")
	for i, q := range questions {
		answer := ""
		if i < len(answers) {
			answer = answers[i]
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q, answer)
	}
	return strings.TrimRight(sb.String(), "\n")
}
