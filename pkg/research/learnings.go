package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

// LearningExtractor distils search results into learnings and follow-up
// questions.
type LearningExtractor interface {
	ExtractLearnings(ctx context.Context, query string, docs []Document, maxLearnings, maxFollowUps int) (Extraction, error)
}

// ExtractorOptions bound the content submitted for one extraction.
type ExtractorOptions struct {
	LLMOptions
	// DocumentTokens caps each document's markdown (default 25 000).
	DocumentTokens int
	// TotalTokens caps all documents together (default 100 000).
	TotalTokens int
	// Timeout bounds the model call (default 60s).
	Timeout time.Duration
	// Trimmer defaults to a tiktoken-backed trimmer.
	Trimmer *splitter.Trimmer
}

// LLMLearningExtractor extracts learnings with a language model.
type LLMLearningExtractor struct {
	client llmClient
	opts   ExtractorOptions
}

func NewLearningExtractor(llm llms.Model, opts ExtractorOptions) *LLMLearningExtractor {
	if opts.DocumentTokens <= 0 {
		opts.DocumentTokens = 25_000
	}
	if opts.TotalTokens <= 0 {
		opts.TotalTokens = 100_000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Trimmer == nil {
		opts.Trimmer = splitter.NewTrimmer(nil)
	}
	return &LLMLearningExtractor{client: newLLMClient(llm, opts.LLMOptions), opts: opts}
}

func learningsSchema(maxLearnings, maxFollowUps int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "learnings": {"type": "array", "items": {"type": "string"}, "description": "List of learnings, max of %d"},
    "followUpQuestions": {"type": "array", "items": {"type": "string"}, "description": "List of follow-up questions to research the topic further, max of %d"}
  },
  "required": ["learnings", "followUpQuestions"]
}`, maxLearnings, maxFollowUps)
}

func (e *LLMLearningExtractor) ExtractLearnings(ctx context.Context, query string, docs []Document, maxLearnings, maxFollowUps int) (Extraction, error) {
	contents := e.trimContents(docs)
	e.client.opts.Logger.Info("Ran query", "query", query, "contents", len(contents))
	if len(contents) == 0 {
		return Extraction{}, nil
	}

	var sb strings.Builder
	for _, c := range contents {
		sb.WriteString("<content>\n")
		sb.WriteString(c)
		sb.WriteString("\n</content>\n")
	}

	prompt := fmt.Sprintf(`Given the following contents from a SERP search for the query <query>%s</query>, generate a list of learnings from the contents. Return at most %d learnings, fewer if the contents are clear. Each learning must be unique. Learnings should be concise yet information dense: include entities such as people, places, companies and products, and exact metrics, numbers and dates. The learnings will be used to research the topic further.

<contents>
%s</contents>`, query, maxLearnings, sb.String())

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	resp, err := generateObject[Extraction](ctx, e.client, prompt, learningsSchema(maxLearnings, maxFollowUps), nil)
	if err != nil {
		return Extraction{}, classify(err, ErrExtraction, ErrExtractionTimeout)
	}

	return Extraction{
		Learnings:         bounded(resp.Learnings, maxLearnings),
		FollowUpQuestions: bounded(resp.FollowUpQuestions, maxFollowUps),
	}, nil
}

// trimContents keeps the leading fragment of each document within the
// per-document and combined budgets. Documents without markdown are skipped.
func (e *LLMLearningExtractor) trimContents(docs []Document) []string {
	var contents []string
	remaining := e.opts.TotalTokens
	for _, d := range docs {
		if strings.TrimSpace(d.Markdown) == "" {
			continue
		}
		budget := min(e.opts.DocumentTokens, remaining)
		if budget <= 0 {
			break
		}
		trimmed := e.opts.Trimmer.Trim(d.Markdown, budget)
		if trimmed == "" {
			continue
		}
		remaining -= e.opts.Trimmer.Count(trimmed)
		contents = append(contents, trimmed)
	}
	return contents
}

// bounded drops blank entries and caps the list at limit.
func bounded(items []string, limit int) []string {
	out := make([]string, 0, min(len(items), max(limit, 0)))
	for _, s := range items {
		if len(out) >= limit {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
