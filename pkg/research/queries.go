package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// QueryGenerator expands a topic into sub-queries.
type QueryGenerator interface {
	GenerateQueries(ctx context.Context, topic string, learnings []string, numQueries int) ([]SubQuery, error)
}

// LLMQueryGenerator generates SERP queries with a language model.
type LLMQueryGenerator struct {
	client llmClient
}

func NewQueryGenerator(llm llms.Model, opts LLMOptions) *LLMQueryGenerator {
	return &LLMQueryGenerator{client: newLLMClient(llm, opts)}
}

const serpQueriesSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "description": "List of SERP queries",
      "items": {
        "type": "object",
        "properties": {
          "query": {"type": "string", "description": "The SERP query"},
          "researchGoal": {"type": "string", "description": "The goal of the research this query is meant to accomplish, then how to advance the research once results are found, with additional directions. Be as specific as possible."}
        },
        "required": ["query", "researchGoal"]
      }
    }
  },
  "required": ["queries"]
}`

// GenerateQueries returns at most numQueries distinct sub-queries. Output
// that cannot be parsed yields an empty list rather than an error; only a
// failing model call is reported, as ErrGeneration.
func (g *LLMQueryGenerator) GenerateQueries(ctx context.Context, topic string, learnings []string, numQueries int) ([]SubQuery, error) {
	if numQueries < 1 {
		return nil, nil
	}

	prompt := fmt.Sprintf(`Given the following prompt from the user, generate a list of SERP queries to research the topic. Return at most %d queries, fewer if the prompt is already clear. Every query must be unique and clearly different from the others: <prompt>%s</prompt>`, numQueries, topic)
	if len(learnings) > 0 {
		prompt += fmt.Sprintf("\n\nHere are learnings from previous research; use them to make the queries more specific: %s", strings.Join(learnings, "\n"))
	}

	type queryResponse struct {
		Queries []SubQuery `json:"queries"`
	}

	resp, err := generateObject(ctx, g.client, prompt, serpQueriesSchema, func(r *queryResponse) error {
		if len(normalizeQueries(r.Queries, numQueries)) == 0 {
			return fmt.Errorf("%w: no usable queries", errInvalidOutput)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errInvalidOutput) {
			g.client.opts.Logger.Warn("Discarding unparseable query list", "topic", topic, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	queries := normalizeQueries(resp.Queries, numQueries)
	g.client.opts.Logger.Info("Generated queries", "count", len(queries))
	return queries, nil
}

// normalizeQueries trims entries, drops ones missing a query or goal,
// removes textual duplicates and caps the list at limit.
func normalizeQueries(queries []SubQuery, limit int) []SubQuery {
	out := make([]SubQuery, 0, len(queries))
	seen := make(map[string]bool)
	for _, q := range queries {
		q.Query = strings.TrimSpace(q.Query)
		q.ResearchGoal = strings.TrimSpace(q.ResearchGoal)
		if q.Query == "" || q.ResearchGoal == "" {
			continue
		}
		if seen[q.Query] {
			continue
		}
		seen[q.Query] = true
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}
